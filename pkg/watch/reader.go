// Package watch turns Kubernetes watch streams into typed events. Reader
// parses a single stream frame by frame; Watcher keeps a durable watch alive
// across disconnects, bookmark checkpoints, and resource version compaction.
package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/kfl/pkg/fluent"
)

// EventType classifies a watch event.
type EventType string

const (
	Added    EventType = "ADDED"
	Modified EventType = "MODIFIED"
	Deleted  EventType = "DELETED"
	Bookmark EventType = "BOOKMARK"
	Error    EventType = "ERROR"
)

// Event is a single change notification. Object is set for every type except
// Error, which carries a Status instead. ResourceVersion is lifted from the
// object's metadata so resume tracking works for any T.
type Event[T any] struct {
	Type            EventType
	Object          *T
	Status          *metav1.Status
	ResourceVersion string
}

type frame struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

type frameMeta struct {
	Metadata struct {
		ResourceVersion string `json:"resourceVersion"`
	} `json:"metadata"`
}

// Reader parses one watch stream: newline-delimited JSON {type, object}
// frames. It is pull-based, finite, and bound to the single stream it was
// created over.
type Reader[T any] struct {
	dec  *json.Decoder
	body io.ReadCloser
}

// NewReader wraps a streaming watch response body.
func NewReader[T any](body io.ReadCloser) *Reader[T] {
	return &Reader[T]{dec: json.NewDecoder(body), body: body}
}

// Next returns the next event. io.EOF signals the end of the stream; any
// other error is a malformed frame.
func (r *Reader[T]) Next() (Event[T], error) {
	var f frame
	if err := r.dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Event[T]{}, io.EOF
		}
		return Event[T]{}, fmt.Errorf("decode watch frame: %w", err)
	}
	ev := Event[T]{Type: EventType(f.Type)}
	if ev.Type == Error {
		status := &metav1.Status{}
		if err := fluent.Unmarshal(f.Object, status); err != nil {
			return Event[T]{}, fmt.Errorf("decode watch error frame: %w", err)
		}
		ev.Status = status
		return ev, nil
	}
	obj := new(T)
	if err := fluent.Unmarshal(f.Object, obj); err != nil {
		return Event[T]{}, err
	}
	ev.Object = obj
	var meta frameMeta
	if err := json.Unmarshal(f.Object, &meta); err == nil {
		ev.ResourceVersion = meta.Metadata.ResourceVersion
	}
	return ev, nil
}

// Close releases the underlying stream.
func (r *Reader[T]) Close() error {
	return r.body.Close()
}
