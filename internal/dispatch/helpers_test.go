package dispatch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/vision-mcp/internal/files"
	"github.com/bobmcallan/vision-mcp/internal/metrics"
)

func solidImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 200})
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func memFs(t *testing.T, entries map[string][]byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range entries {
		require.NoError(t, afero.WriteFile(fs, name, data, 0644))
	}
	return fs
}

// countingResolver records every reference it is asked to load.
type countingResolver struct {
	inner FileResolver
	mu    sync.Mutex
	refs  []string
}

func (c *countingResolver) Resolve(ctx context.Context, ref string, opts files.Options) (*files.LoadedFile, error) {
	c.record(ref)
	return c.inner.Resolve(ctx, ref, opts)
}

func (c *countingResolver) InlinePayload(ctx context.Context, ref string, kind files.Kind) (string, error) {
	c.record(ref)
	return c.inner.InlinePayload(ctx, ref, kind)
}

func (c *countingResolver) record(ref string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = append(c.refs, ref)
}

func (c *countingResolver) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}

type recordedCall struct {
	tool    string
	outcome metrics.Outcome
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) RecordToolCall(_ context.Context, tool string, outcome metrics.Outcome, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{tool: tool, outcome: outcome})
}

func (f *fakeRecorder) last() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return recordedCall{}
	}
	return f.calls[len(f.calls)-1]
}
