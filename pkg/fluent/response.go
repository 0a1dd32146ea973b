package fluent

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Response wraps an HTTP response. Buffered responses (the default) need no
// disposal; streaming responses hand body ownership to the caller, who must
// Close.
type Response struct {
	raw      *http.Response
	verb     string
	name     string
	body     []byte
	buffered bool
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.raw.StatusCode }

// IsError reports a status code of 400 or above.
func (r *Response) IsError() bool { return r.raw.StatusCode >= 400 }

// IsNotFound reports a 404.
func (r *Response) IsNotFound() bool { return r.raw.StatusCode == http.StatusNotFound }

// Headers returns the response headers.
func (r *Response) Headers() http.Header { return r.raw.Header }

// Body returns the response body stream. For a streaming response it is the
// live network stream and is consumable at most once; for a buffered response
// it replays the buffer.
func (r *Response) Body() io.ReadCloser {
	if r.buffered {
		return io.NopCloser(bytes.NewReader(r.body))
	}
	return r.raw.Body
}

// Bytes returns the full body, reading and closing the stream if the response
// was not buffered.
func (r *Response) Bytes() ([]byte, error) {
	if r.buffered {
		return r.body, nil
	}
	defer r.raw.Body.Close()
	data, err := io.ReadAll(r.raw.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	r.body = data
	r.buffered = true
	return data, nil
}

// Into buffers the body and decodes it into v.
func (r *Response) Into(v any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return Unmarshal(data, v)
}

// Status decodes a Status from the body, or synthesizes one from the HTTP
// status when the body is not a Status; a non-empty body is appended to the
// synthesized message.
func (r *Response) Status() *metav1.Status {
	data, err := r.Bytes()
	if err == nil && len(data) > 0 {
		var status metav1.Status
		if decodeErr := Unmarshal(data, &status); decodeErr == nil && status.Kind == "Status" {
			return &status
		}
	}
	synthesized := apierrors.NewGenericServerResponse(
		r.raw.StatusCode, r.verb, schema.GroupResource{}, r.name, string(data), 0, true,
	).Status()
	if len(data) > 0 {
		synthesized.Message = fmt.Sprintf("%s: %s", synthesized.Message, data)
	}
	return &synthesized
}

// Err returns nil for a success response, and a StatusError carrying the
// decoded or synthesized Status otherwise.
func (r *Response) Err() error {
	if !r.IsError() {
		return nil
	}
	return &apierrors.StatusError{ErrStatus: *r.Status()}
}

// Close releases the underlying network stream. Safe to call on buffered
// responses, where it is a no-op.
func (r *Response) Close() error {
	if r.buffered || r.raw.Body == nil {
		return nil
	}
	return r.raw.Body.Close()
}
