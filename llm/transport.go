package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// roundTripperFunc adapts a function to an http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type extraBodyKey struct{}

type citationSinkKey struct{}

// citationSink collects the "citations" array of a non-streaming response.
type citationSink struct {
	citations []string
}

// withExtraBody attaches fields to merge into the JSON body of outgoing requests.
func withExtraBody(ctx context.Context, extra map[string]any) context.Context {
	if len(extra) == 0 {
		return ctx
	}
	return context.WithValue(ctx, extraBodyKey{}, extra)
}

func withCitationSink(ctx context.Context, sink *citationSink) context.Context {
	return context.WithValue(ctx, citationSinkKey{}, sink)
}

// compatHTTPClient returns a client whose transport merges per-request extra body
// fields and captures citations of OpenAI-compatible responses. The go-openai
// request types have no open-ended field for vendor extensions.
func compatHTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if extra, ok := req.Context().Value(extraBodyKey{}).(map[string]any); ok && req.Body != nil {
			if err := mergeJSONBody(req, extra); err != nil {
				return nil, err
			}
		}
		resp, err := base.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		sink, ok := req.Context().Value(citationSinkKey{}).(*citationSink)
		if !ok || resp.Body == nil || strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
			return resp, nil
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		var probe struct {
			Citations []string `json:"citations"`
		}
		if json.Unmarshal(body, &probe) == nil {
			sink.citations = probe.Citations
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	})}
}

func mergeJSONBody(req *http.Request, extra map[string]any) error {
	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not a JSON object; send it untouched.
		body = nil
	}
	if body != nil {
		for k, v := range extra {
			body[k] = v
		}
		if merged, err := json.Marshal(body); err == nil {
			raw = merged
		}
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.ContentLength = int64(len(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return nil
}
