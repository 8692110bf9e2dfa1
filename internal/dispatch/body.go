package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/files"
)

// FileResolver turns file references into upload-ready bytes.
type FileResolver interface {
	Resolve(ctx context.Context, ref string, opts files.Options) (*files.LoadedFile, error)
	InlinePayload(ctx context.Context, ref string, kind files.Kind) (string, error)
}

// EncodedBody is a serialized request body.
type EncodedBody struct {
	ContentType string
	Data        []byte
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildBody encodes body for the given content type. Every file reference
// is checked against the absolute-path policy before any of them is read.
// JSON and URL-encoded bodies carry files inline as base64; multipart bodies
// carry them as file parts. An empty content type or nil body yields nil.
func BuildBody(ctx context.Context, contentType string, body *Body, resolver FileResolver) (*EncodedBody, error) {
	if contentType == "" || body == nil {
		return nil, nil
	}

	for _, ref := range body.FileRefs() {
		if err := files.CheckReference(ref.Ref); err != nil {
			return nil, err
		}
	}

	switch contentType {
	case catalog.ContentTypeJSON:
		return buildJSON(ctx, body, resolver)
	case catalog.ContentTypeMultipart:
		return buildMultipart(ctx, body, resolver)
	case catalog.ContentTypeURLEncoded:
		return buildURLEncoded(ctx, body, resolver)
	}
	return nil, &SetupError{Err: fmt.Errorf("unsupported request body content type %q", contentType)}
}

func buildJSON(ctx context.Context, body *Body, resolver FileResolver) (*EncodedBody, error) {
	var value any = body.Raw
	if body.Raw == nil {
		obj := make(map[string]any, len(body.Fields))
		for _, f := range body.Fields {
			v, err := inlineValue(ctx, f, resolver)
			if err != nil {
				return nil, err
			}
			obj[f.Name] = v
		}
		value = obj
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, &SerializationError{Err: fmt.Errorf("failed to encode JSON request body: %w", err)}
	}
	return &EncodedBody{ContentType: catalog.ContentTypeJSON, Data: data}, nil
}

func buildMultipart(ctx context.Context, body *Body, resolver FileResolver) (*EncodedBody, error) {
	if body.Raw != nil {
		return nil, &SetupError{Err: fmt.Errorf("multipart request body must be an object or a key=value string")}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range body.Fields {
		if f.File == nil {
			if err := w.WriteField(f.Name, stringValue(f.Value)); err != nil {
				return nil, &SetupError{Err: err}
			}
			continue
		}

		// Attachments keep their source image format; only alpha is dropped.
		loaded, err := resolver.Resolve(ctx, f.File.Ref, files.Options{
			Kind:         f.File.Kind,
			OutputFormat: files.SourceFormat(f.File.Ref),
		})
		if err != nil {
			return nil, err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Name), quoteEscaper.Replace(loaded.Filename)))
		h.Set("Content-Type", loaded.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, &SetupError{Err: err}
		}
		if _, err := part.Write(loaded.Data); err != nil {
			return nil, &SetupError{Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, &SetupError{Err: err}
	}
	return &EncodedBody{ContentType: w.FormDataContentType(), Data: buf.Bytes()}, nil
}

func buildURLEncoded(ctx context.Context, body *Body, resolver FileResolver) (*EncodedBody, error) {
	if body.Raw != nil {
		return nil, &SetupError{Err: fmt.Errorf("url-encoded request body must be an object or a key=value string")}
	}

	pairs := make([]string, 0, len(body.Fields))
	for _, f := range body.Fields {
		v, err := inlineValue(ctx, f, resolver)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, url.QueryEscape(f.Name)+"="+url.QueryEscape(stringValue(v)))
	}
	return &EncodedBody{ContentType: catalog.ContentTypeURLEncoded, Data: []byte(strings.Join(pairs, "&"))}, nil
}

// inlineValue returns the field value, or the base64 payload of the file
// it references.
func inlineValue(ctx context.Context, f Field, resolver FileResolver) (any, error) {
	if f.File == nil {
		return f.Value, nil
	}
	return resolver.InlinePayload(ctx, f.File.Ref, f.File.Kind)
}
