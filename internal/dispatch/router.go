package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/vision-mcp/internal/catalog"
	"github.com/bobmcallan/vision-mcp/internal/files"
)

// bodyArg is the argument that carries an explicit request body.
const bodyArg = "requestBody"

// authArg is the credential argument injected by the dispatcher.
const authArg = "authorization"

// Route is the outcome of placing arguments into the URL and headers.
type Route struct {
	Path      string
	Query     url.Values
	Header    http.Header // keys are lower-cased
	Remaining map[string]any
}

// RouteParams places each declared execution parameter into the path,
// query string or headers and returns the arguments left for the body.
// Absent and null arguments are skipped. Any {token} left in the path is
// a PathResolutionError.
func RouteParams(tool catalog.Tool, args map[string]any) (*Route, error) {
	r := &Route{
		Path:      tool.PathTemplate,
		Query:     url.Values{},
		Header:    http.Header{},
		Remaining: make(map[string]any, len(args)),
	}
	for k, v := range args {
		r.Remaining[k] = v
	}

	for _, p := range tool.ExecutionParameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case catalog.InPath:
			r.Path = strings.ReplaceAll(r.Path, "{"+p.Name+"}", url.PathEscape(stringValue(v)))
		case catalog.InQuery:
			if list, ok := v.([]any); ok {
				for _, item := range list {
					r.Query.Add(p.Name, stringValue(item))
				}
			} else {
				r.Query.Add(p.Name, stringValue(v))
			}
		case catalog.InHeader:
			r.Header[strings.ToLower(p.Name)] = []string{stringValue(v)}
		default:
			continue
		}
		delete(r.Remaining, p.Name)
	}

	if strings.Contains(r.Path, "{") {
		return nil, &PathResolutionError{Tool: tool.Name, Path: r.Path}
	}
	return r, nil
}

// FileRef is a body field value that names a file to upload.
type FileRef struct {
	Ref  string
	Kind files.Kind
}

// Field is one body field. File is set when the value is a file reference.
type Field struct {
	Name  string
	Value any
	File  *FileRef
}

// Body is the structured request body handed to BuildBody. Fields keep
// their source order. Raw holds a body that is not a set of fields, such
// as a JSON array.
type Body struct {
	Fields []Field
	Raw    any
}

// FileRefs returns the file-bearing fields in order.
func (b *Body) FileRefs() []*FileRef {
	var refs []*FileRef
	for _, f := range b.Fields {
		if f.File != nil {
			refs = append(refs, f.File)
		}
	}
	return refs
}

// ExtractBody builds the structured body from the arguments left after
// routing. The requestBody argument is used when present: an object gives
// one field per key, and a string is read as key=value&... pairs. Without
// requestBody the remaining arguments themselves form the body. It
// returns nil when there is nothing to send.
func ExtractBody(remaining map[string]any) (*Body, error) {
	if raw, ok := remaining[bodyArg]; ok && raw != nil {
		switch v := raw.(type) {
		case string:
			return parseFormBody(v)
		case map[string]any:
			return fieldsFromMap(v), nil
		default:
			return &Body{Raw: v}, nil
		}
	}

	rest := make(map[string]any, len(remaining))
	for k, v := range remaining {
		if k == authArg || k == bodyArg {
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return nil, nil
	}
	return fieldsFromMap(rest), nil
}

func fieldsFromMap(m map[string]any) *Body {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := &Body{Fields: make([]Field, 0, len(keys))}
	for _, k := range keys {
		b.Fields = append(b.Fields, newField(k, m[k]))
	}
	return b
}

// parseFormBody decodes a key=value&key2=value2 string once, keeping the
// pair order. '+' decodes to a space. File reference values (image, pdf,
// video) are taken verbatim so paths holding '+' or '%' survive.
func parseFormBody(s string) (*Body, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "?")
	b := &Body{}
	if s == "" {
		return b, nil
	}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, &SetupError{Err: fmt.Errorf("invalid request body field %q: %w", key, err)}
		}
		if _, isFile := files.FieldKinds[k]; isFile {
			b.Fields = append(b.Fields, newField(k, value))
			continue
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, &SetupError{Err: fmt.Errorf("invalid request body value for %q: %w", k, err)}
		}
		b.Fields = append(b.Fields, newField(k, v))
	}
	return b, nil
}

func newField(name string, value any) Field {
	f := Field{Name: name, Value: value}
	if kind, ok := files.FieldKinds[name]; ok {
		if ref, ok := value.(string); ok && ref != "" {
			f.File = &FileRef{Ref: files.StripSigil(ref), Kind: kind}
		}
	}
	return f
}

// stringValue renders an argument for a path, query or header slot.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case nil:
		return ""
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
