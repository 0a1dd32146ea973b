package scheme

import (
	"errors"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestDefaultSchemeResolvesBuiltins(t *testing.T) {
	cases := []struct {
		obj     any
		group   string
		version string
		kind    string
		path    string
	}{
		{&corev1.Pod{}, "", "v1", "Pod", "pods"},
		{corev1.Service{}, "", "v1", "Service", "services"},
		{&appsv1.Deployment{}, "apps", "v1", "Deployment", "deployments"},
		{&corev1.Endpoints{}, "", "v1", "Endpoints", "endpoints"},
	}
	for _, tc := range cases {
		info, err := Default().Lookup(tc.obj)
		if err != nil {
			t.Fatalf("Lookup(%T) returned error: %v", tc.obj, err)
		}
		want := schema.GroupVersionKind{Group: tc.group, Version: tc.version, Kind: tc.kind}
		if info.GVK != want {
			t.Fatalf("Lookup(%T) gvk = %v, want %v", tc.obj, info.GVK, want)
		}
		if info.Path != tc.path {
			t.Fatalf("Lookup(%T) path = %q, want %q", tc.obj, info.Path, tc.path)
		}
	}
}

func TestLookupUnregisteredTypeFailsDistinctly(t *testing.T) {
	type notAKind struct{}
	_, err := Default().Lookup(&notAKind{})
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := Default().Lookup(42); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for non-struct, got %v", err)
	}
}

func TestRegisterCustomKind(t *testing.T) {
	type Widget struct{}
	s := New()
	gvk := schema.GroupVersionKind{Group: "example.io", Version: "v1alpha1", Kind: "Widget"}
	if err := s.Register(&Widget{}, gvk, ""); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	info, err := s.Lookup(Widget{})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if info.Path != "widgets" {
		t.Fatalf("derived path = %q, want widgets", info.Path)
	}
	apiVersion, kind, err := s.VersionKind(&Widget{})
	if err != nil {
		t.Fatalf("VersionKind returned error: %v", err)
	}
	if apiVersion != "example.io/v1alpha1" || kind != "Widget" {
		t.Fatalf("VersionKind = %q/%q", apiVersion, kind)
	}
}

func TestVersionKindCoreGroup(t *testing.T) {
	apiVersion, kind, err := Default().VersionKind(&corev1.Pod{})
	if err != nil {
		t.Fatalf("VersionKind returned error: %v", err)
	}
	if apiVersion != "v1" || kind != "Pod" {
		t.Fatalf("VersionKind = %q/%q, want v1/Pod", apiVersion, kind)
	}
}
