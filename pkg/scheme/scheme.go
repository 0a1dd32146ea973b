// Package scheme maps Go types for Kubernetes objects to their
// group/version/kind and the plural path segment used in API URLs. A
// process-global default scheme preloads the built-in kinds; custom kinds
// register at startup.
package scheme

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ErrNotRegistered reports a lookup for a type the scheme does not know.
// Callers holding only a kind string can fall back to GuessPath.
var ErrNotRegistered = errors.New("type is not registered in the scheme")

// Info is everything the request builder needs to address a resource type.
type Info struct {
	GVK  schema.GroupVersionKind
	Path string // plural URL path segment, e.g. "pods"
}

// Scheme is a registry of Go types for Kubernetes objects. The zero value is
// not usable; construct with New or use Default.
type Scheme struct {
	mu    sync.RWMutex
	types map[reflect.Type]Info
}

// New returns an empty scheme.
func New() *Scheme {
	return &Scheme{types: make(map[reflect.Type]Info)}
}

var defaultScheme = func() *Scheme {
	s := New()
	registerBuiltins(s)
	return s
}()

// Default returns the process-global scheme preloaded with the built-in
// Kubernetes kinds.
func Default() *Scheme { return defaultScheme }

// Register records obj's type under the given group/version/kind. An empty
// path derives the plural segment from the kind via GuessPath. Registering
// the same type twice overwrites the earlier entry.
func (s *Scheme) Register(obj any, gvk schema.GroupVersionKind, path string) error {
	t := canonicalType(obj)
	if t == nil {
		return fmt.Errorf("cannot register %T: not a struct type", obj)
	}
	if gvk.Version == "" || gvk.Kind == "" {
		return fmt.Errorf("cannot register %v: version and kind are required", t)
	}
	if path == "" {
		path = GuessPath(gvk.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t] = Info{GVK: gvk, Path: path}
	return nil
}

// Lookup resolves obj's type (pointer or value) to its registered Info.
func (s *Scheme) Lookup(obj any) (Info, error) {
	t := canonicalType(obj)
	if t == nil {
		return Info{}, fmt.Errorf("%T: %w", obj, ErrNotRegistered)
	}
	return s.LookupType(t)
}

// LookupType resolves a canonical (non-pointer) struct type.
func (s *Scheme) LookupType(t reflect.Type) (Info, error) {
	s.mu.RLock()
	info, ok := s.types[t]
	s.mu.RUnlock()
	if !ok {
		return Info{}, fmt.Errorf("%v: %w", t, ErrNotRegistered)
	}
	return info, nil
}

// VersionKind returns the apiVersion/kind pair for obj's registered type.
func (s *Scheme) VersionKind(obj any) (apiVersion, kind string, err error) {
	info, err := s.Lookup(obj)
	if err != nil {
		return "", "", err
	}
	return info.GVK.GroupVersion().String(), info.GVK.Kind, nil
}

func canonicalType(obj any) reflect.Type {
	t := reflect.TypeOf(obj)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}
