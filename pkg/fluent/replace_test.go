package fluent

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func writeStatus(w http.ResponseWriter, code int, reason metav1.StatusReason) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(&metav1.Status{
		TypeMeta: metav1.TypeMeta{Kind: "Status", APIVersion: "v1"},
		Status:   metav1.StatusFailure,
		Reason:   reason,
		Code:     int32(code),
	})
}

func writeConfigMap(w http.ResponseWriter, rv string, data map[string]string) {
	json.NewEncoder(w).Encode(&corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{Kind: "ConfigMap", APIVersion: "v1"},
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "cm", ResourceVersion: rv},
		Data:       data,
	})
}

func TestReplaceRetriesOnConflict(t *testing.T) {
	var mu sync.Mutex
	var gets, puts int
	rs := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			gets++
			writeConfigMap(w, "10", map[string]string{"n": "0"})
		case http.MethodPut:
			puts++
			if puts == 1 {
				writeStatus(w, http.StatusConflict, metav1.StatusReasonConflict)
				return
			}
			writeConfigMap(w, "11", map[string]string{"n": "1"})
		}
	})
	c := rs.client(t)
	req := For[corev1.ConfigMap](c).Namespace("ns").Name("cm")

	got, err := Replace(context.Background(), req, nil, func(ctx context.Context, cm *corev1.ConfigMap) (bool, error) {
		cm.Data = map[string]string{"n": "1"}
		return true, nil
	}, false)
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if got.ResourceVersion != "11" || got.Data["n"] != "1" {
		t.Fatalf("unexpected result %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if gets != 2 {
		t.Fatalf("expected a fresh GET per conflict, got %d gets", gets)
	}
	if puts != 2 {
		t.Fatalf("expected 2 puts, got %d", puts)
	}
}

func TestReplaceSkipsPutWhenUnchanged(t *testing.T) {
	var mu sync.Mutex
	var puts int
	rs := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodPut {
			puts++
		}
		writeConfigMap(w, "10", nil)
	})
	c := rs.client(t)
	req := For[corev1.ConfigMap](c).Namespace("ns").Name("cm")

	got, err := Replace(context.Background(), req, nil, func(ctx context.Context, cm *corev1.ConfigMap) (bool, error) {
		return false, nil
	}, false)
	if err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if got == nil || got.ResourceVersion != "10" {
		t.Fatalf("unexpected result %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if puts != 0 {
		t.Fatalf("Replace must never PUT an unchanged object, saw %d puts", puts)
	}
}

func TestReplaceMissingObject(t *testing.T) {
	rs := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, metav1.StatusReasonNotFound)
	})
	c := rs.client(t)
	req := For[corev1.ConfigMap](c).Namespace("ns").Name("cm")
	modify := func(ctx context.Context, cm *corev1.ConfigMap) (bool, error) { return true, nil }

	got, err := Replace(context.Background(), req, nil, modify, false)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing object, got %v, %v", got, err)
	}

	_, err = Replace(context.Background(), req, nil, modify, true)
	if !apierrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestReplaceSurfacesOtherErrors(t *testing.T) {
	rs := newRecordingServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeConfigMap(w, "10", nil)
		default:
			writeStatus(w, http.StatusForbidden, metav1.StatusReasonForbidden)
		}
	})
	c := rs.client(t)
	req := For[corev1.ConfigMap](c).Namespace("ns").Name("cm")

	_, err := Replace(context.Background(), req, nil, func(ctx context.Context, cm *corev1.ConfigMap) (bool, error) {
		return true, nil
	}, false)
	if !apierrors.IsForbidden(err) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestReplaceChecksCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rs := newRecordingServer(t, nil)
	c := rs.client(t)
	req := For[corev1.ConfigMap](c).Namespace("ns").Name("cm")
	_, err := Replace(ctx, req, nil, func(ctx context.Context, cm *corev1.ConfigMap) (bool, error) {
		return true, nil
	}, false)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
