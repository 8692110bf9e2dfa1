package common

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNewLoggerFromConfig_ReturnsNonNil(t *testing.T) {
	logger := NewLoggerFromConfig(LoggingConfig{Level: "info"})
	if logger == nil {
		t.Fatal("NewLoggerFromConfig returned nil")
	}
}

func TestNewLoggerFromConfig_FluentAPI(t *testing.T) {
	logger := NewLoggerFromConfig(LoggingConfig{Level: "error"})
	logger.Info().Str("tool", "owlv2").Msg("test message")
	logger.Warn().Int("status", 404).Msg("warning")
	logger.Error().Err(nil).Msg("error message")
	logger.Debug().Float64("confidence", 0.2).Bool("display", true).Msg("debug")
}

func TestNewLoggerWithOutput_WritesToProvidedWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("info", &buf)
	logger.Info().Str("tool", "qr_reader").Msg("hello")

	if buf.String() == "" {
		t.Error("Expected output to provided writer, got empty string")
	}
}

func TestNewLoggerWithOutput_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("warn", &buf)
	logger.Info().Msg("dropped")
	logger.Warn().Str("tool", "owlv2").Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "tool=owlv2") {
		t.Errorf("expected warn line with fields, got %q", out)
	}
}

func TestNewLoggerWithOutput_WritersAreIsolated(t *testing.T) {
	var first, second bytes.Buffer
	a := NewLoggerWithOutput("info", &first)
	_ = NewLoggerWithOutput("info", &second)

	a.Info().Msg("only first")

	if !strings.Contains(first.String(), "only first") {
		t.Errorf("expected line in first writer, got %q", first.String())
	}
	if second.Len() > 0 {
		t.Errorf("second writer received another logger's output: %q", second.String())
	}
}

func TestNewSilentLogger_DoesNotWriteToGlobalWriters(t *testing.T) {
	var buf bytes.Buffer
	_ = NewLoggerWithOutput("info", &buf)
	buf.Reset()

	silent := NewSilentLogger()
	silent.Info().Str("tool", "sam2").Msg("this should NOT appear")
	silent.Error().Msg("this should NOT appear either")

	if buf.Len() > 0 {
		t.Errorf("Silent logger wrote %d bytes to global writer: %s", buf.Len(), buf.String())
	}
}

func TestNewLoggerFromConfig_DoesNotWriteToStdout(t *testing.T) {
	// stdout is the MCP stdio channel; the console writer must use stderr.
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Failed to create pipe: %v", err)
	}
	os.Stdout = w

	logger := NewLoggerFromConfig(LoggingConfig{Level: "info", Outputs: []string{"console"}})
	logger.Info().Str("tool", "test").Msg("this must not go to stdout")
	logger.Error().Msg("neither should this")
	time.Sleep(50 * time.Millisecond)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	r.Close()

	if buf.Len() > 0 {
		t.Errorf("Logger wrote %d bytes to stdout (would corrupt MCP stdio): %s", buf.Len(), buf.String())
	}
}

func TestWithCorrelationId_ReturnsNewLogger(t *testing.T) {
	logger := NewLoggerFromConfig(LoggingConfig{Level: "info"})
	correlated := logger.WithCorrelationId("inv-123")

	if correlated == nil {
		t.Fatal("WithCorrelationId returned nil")
	}
	if correlated == logger {
		t.Error("WithCorrelationId should return a new Logger instance, not the same one")
	}
	correlated.Info().Str("tool", "owlv2").Msg("invocation start")
	correlated.Info().Dur("elapsed", 0).Msg("invocation complete")
}
