package fluent

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kjson "sigs.k8s.io/json"
)

// Marshal encodes a Kubernetes object as JSON. Empty fields are omitted per
// the objects' struct tags; enum-typed fields are strings in Go and encode as
// their string form.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes JSON the way Kubernetes clients do: case-sensitive field
// matching with integers preserved.
func Unmarshal(data []byte, v any) error {
	if err := kjson.UnmarshalCaseSensitivePreserveInts(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// CloneObject deep-copies an object by round-tripping it through the codec.
func CloneObject[T any](v *T) (*T, error) {
	if v == nil {
		return nil, nil
	}
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// List is the generic shape of a Kubernetes collection response. The server
// fills apiVersion and kind; Metadata carries the collection resourceVersion
// used to baseline watches.
type List[T any] struct {
	metav1.TypeMeta `json:",inline"`
	Metadata        metav1.ListMeta `json:"metadata,omitempty"`
	Items           []T             `json:"items"`
}
