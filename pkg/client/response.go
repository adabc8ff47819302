package client

import (
	"encoding/json"
	"fmt"

	"github.com/clbanning/mxj/v2"
)

// Response is the uniform envelope around one raw HTTP result. The structured
// view is computed once at construction, for every response including error
// bodies, and never recomputed.
type Response struct {
	// Success is true when the status code is in [200, 300).
	Success bool
	// URL is the effective request URL, including any query string.
	URL string
	// StatusCode is 0 when no response was obtained at all.
	StatusCode int
	// Body is the raw response body.
	Body []byte
	// Err carries transport-level failure text; empty otherwise.
	Err string

	// Parsed is the best-effort structured decode of Body: strict JSON
	// object first, then a one-level XML mapping. Nil when neither applies.
	Parsed map[string]any
	// IsStructured reports whether Parsed was populated.
	IsStructured bool
}

func newResponse(success bool, url string, status int, body []byte, errText string) *Response {
	r := &Response{
		Success:    success,
		URL:        url,
		StatusCode: status,
		Body:       body,
		Err:        errText,
	}
	r.Parsed, r.IsStructured = decodeStructured(body)
	return r
}

// decodeStructured attempts a strict JSON-object decode and falls back to an
// XML decode that maps the root element's immediate children to their text.
func decodeStructured(body []byte) (map[string]any, bool) {
	if len(body) == 0 {
		return nil, false
	}

	// A bare JSON null unmarshals without error but leaves the map nil.
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
		return obj, true
	}

	mv, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, false
	}
	for root, v := range mv {
		children := map[string]any{}
		if m, ok := v.(map[string]any); ok {
			for tag, cv := range m {
				switch t := cv.(type) {
				case string:
					children[tag] = t
				case map[string]any:
					if text, ok := t["#text"].(string); ok {
						children[tag] = text
					}
				}
			}
		}
		return map[string]any{root: children}, true
	}
	return nil, false
}

// Decode unmarshals the raw body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (r *Response) String() string {
	return fmt.Sprintf("<Response success=%t status=%d url=%s>", r.Success, r.StatusCode, r.URL)
}
