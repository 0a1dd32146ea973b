package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/example/kfl/pkg/fluent"
)

// watchServer scripts a sequence of watch/list exchanges. Each incoming
// request is handed, together with its ordinal, to the script function.
type watchServer struct {
	mu    sync.Mutex
	calls []string // "list" or "watch rv=<v>"
	srv   *httptest.Server
}

func newWatchServer(t *testing.T, script func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request)) *watchServer {
	t.Helper()
	ws := &watchServer{}
	n := 0
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		isWatch := q.Get("watch") == "1"
		rv := q.Get("resourceVersion")
		ws.mu.Lock()
		if isWatch {
			ws.calls = append(ws.calls, "watch rv="+rv)
		} else {
			ws.calls = append(ws.calls, "list")
		}
		call := n
		n++
		ws.mu.Unlock()
		script(call, isWatch, rv, w, r)
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *watchServer) recorded() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]string(nil), ws.calls...)
}

func sendFrames(t *testing.T, w http.ResponseWriter, frames ...string) {
	t.Helper()
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("response writer does not support flushing")
	}
	for _, f := range frames {
		if _, err := fmt.Fprint(w, f); err != nil {
			return
		}
		flusher.Flush()
	}
}

// trace collects the watcher callback sequence plus a signal channel the test
// can block on.
type trace struct {
	mu     sync.Mutex
	events []string
	seen   chan string
}

func newTrace() *trace {
	return &trace{seen: make(chan string, 64)}
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	tr.events = append(tr.events, s)
	tr.mu.Unlock()
	tr.seen <- s
}

func (tr *trace) all() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.events...)
}

func (tr *trace) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-tr.seen:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q; saw %v", want, tr.all())
		}
	}
}

func hooksForTrace[T any](tr *trace) Hooks[T] {
	return Hooks[T]{
		OnOpen:        func() { tr.add("open") },
		OnInitialList: func() { tr.add("initial-list") },
		OnEvent: func(ev Event[T]) {
			tr.add(fmt.Sprintf("%s rv=%s", ev.Type, ev.ResourceVersion))
		},
		OnReset: func() { tr.add("reset") },
		OnError: func(err error) { tr.add("error: " + err.Error()) },
		OnClose: func() { tr.add("closed") },
	}
}

func runWatcher[T any](t *testing.T, w *Watcher[T]) (wait func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	return func() {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("watcher did not stop in time")
		}
	}
}

func podListJSON(t *testing.T, rv string, names ...string) string {
	t.Helper()
	items := make([]corev1.Pod, 0, len(names))
	for i, name := range names {
		items = append(items, corev1.Pod{
			TypeMeta:   metav1.TypeMeta{Kind: "Pod", APIVersion: "v1"},
			ObjectMeta: metav1.ObjectMeta{Name: name, ResourceVersion: fmt.Sprintf("%s-%d", rv, i)},
		})
	}
	payload, err := json.Marshal(map[string]any{
		"apiVersion": "v1",
		"kind":       "PodList",
		"metadata":   map[string]any{"resourceVersion": rv},
		"items":      items,
	})
	if err != nil {
		t.Fatalf("marshal list: %v", err)
	}
	return string(payload)
}

func TestWatcherResumesAcrossDisconnect(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		switch n {
		case 0:
			sendFrames(t, w,
				podFrame(t, "ADDED", "a", "6"),
				podFrame(t, "MODIFIED", "a", "7"),
			)
			// Handler returns: mid-stream disconnect.
		default:
			sendFrames(t, w, podFrame(t, "MODIFIED", "a", "8"))
			<-r.Context().Done()
		}
	})
	c, err := fluent.New(ws.srv.URL)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	watcher, err := New(fluent.For[corev1.Pod](c).Namespace("ns"), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "MODIFIED rv=8")
	watcher.Stop()
	wait()

	calls := ws.recorded()
	if len(calls) < 2 || calls[0] != "watch rv=5" || calls[1] != "watch rv=7" {
		t.Fatalf("unexpected call sequence %v", calls)
	}
	got := tr.all()
	wantPrefix := []string{"open", "ADDED rv=6", "MODIFIED rv=7", "open", "MODIFIED rv=8"}
	for i, want := range wantPrefix {
		if i >= len(got) || got[i] != want {
			t.Fatalf("callback sequence = %v, want prefix %v", got, wantPrefix)
		}
	}
	if got[len(got)-1] != "closed" {
		t.Fatalf("expected closed last, got %v", got)
	}
}

func TestWatcherBookmarkAdvancesWithoutForwarding(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		switch n {
		case 0:
			sendFrames(t, w, podFrame(t, "BOOKMARK", "", "9"))
		default:
			sendFrames(t, w, podFrame(t, "ADDED", "b", "10"))
			<-r.Context().Done()
		}
	})
	c, _ := fluent.New(ws.srv.URL)
	watcher, err := New(fluent.For[corev1.Pod](c), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "ADDED rv=10")
	watcher.Stop()
	wait()

	calls := ws.recorded()
	if len(calls) < 2 || calls[1] != "watch rv=9" {
		t.Fatalf("bookmark should advance the resume token, calls = %v", calls)
	}
	for _, ev := range tr.all() {
		if ev == "BOOKMARK rv=9" {
			t.Fatal("bookmark events must not be forwarded")
		}
	}
}

func TestWatcherListWatchRequestsBookmarks(t *testing.T) {
	gotParam := make(chan string, 1)
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		if isWatch && n == 0 {
			gotParam <- r.URL.Query().Get("allowWatchBookmarks")
		}
		sendFrames(t, w, podFrame(t, "ADDED", "a", "6"))
		<-r.Context().Done()
	})
	c, _ := fluent.New(ws.srv.URL)
	tr := newTrace()
	watcher, err := New(fluent.For[corev1.Pod](c), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "ADDED rv=6")
	watcher.Stop()
	wait()
	select {
	case v := <-gotParam:
		if v != "true" {
			t.Fatalf("allowWatchBookmarks = %q, want true", v)
		}
	default:
		t.Fatal("no watch request observed")
	}
}

func TestWatcherResetOn410RelistsAndResumes(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		switch {
		case n == 0: // resume attempt rejected: version compacted away
			w.WriteHeader(http.StatusGone)
			json.NewEncoder(w).Encode(&metav1.Status{
				TypeMeta: metav1.TypeMeta{Kind: "Status", APIVersion: "v1"},
				Status:   metav1.StatusFailure,
				Reason:   metav1.StatusReasonExpired,
				Code:     410,
			})
		case !isWatch:
			sendFrames(t, w, podListJSON(t, "20", "a", "b"))
		default:
			sendFrames(t, w, podFrame(t, "MODIFIED", "a", "21"))
			<-r.Context().Done()
		}
	})
	c, _ := fluent.New(ws.srv.URL)
	watcher, err := New(fluent.For[corev1.Pod](c).Namespace("ns"), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "MODIFIED rv=21")
	watcher.Stop()
	wait()

	got := tr.all()
	want := []string{"reset", "ADDED rv=20-0", "ADDED rv=20-1", "initial-list", "open", "MODIFIED rv=21", "closed"}
	if len(got) != len(want) {
		t.Fatalf("callback sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callback sequence = %v, want %v", got, want)
		}
	}
	calls := ws.recorded()
	if calls[len(calls)-1] != "watch rv=20" {
		t.Fatalf("resume after relist should use the list version, calls = %v", calls)
	}
}

func TestWatcherBootstrapListOnEmptyInitialVersion(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		if !isWatch {
			sendFrames(t, w, podListJSON(t, "30", "a"))
			return
		}
		sendFrames(t, w, podFrame(t, "ADDED", "b", "31"))
		<-r.Context().Done()
	})
	c, _ := fluent.New(ws.srv.URL)
	watcher, err := New(fluent.For[corev1.Pod](c), "", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "ADDED rv=31")
	watcher.Stop()
	wait()

	calls := ws.recorded()
	if calls[0] != "list" || calls[1] != "watch rv=30" {
		t.Fatalf("expected bootstrap list then watch, got %v", calls)
	}
	got := tr.all()
	want := []string{"ADDED rv=30-0", "initial-list", "open", "ADDED rv=31"}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("callback sequence = %v, want prefix %v", got, want)
		}
	}
}

func TestWatcherSingleItemResetRefetches(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		switch {
		case n == 0:
			sendFrames(t, w, frameText(t, "ERROR", &metav1.Status{
				TypeMeta: metav1.TypeMeta{Kind: "Status", APIVersion: "v1"},
				Status:   metav1.StatusFailure,
				Reason:   metav1.StatusReasonExpired,
				Code:     410,
			}))
		case !isWatch:
			json.NewEncoder(w).Encode(&corev1.Pod{
				TypeMeta:   metav1.TypeMeta{Kind: "Pod", APIVersion: "v1"},
				ObjectMeta: metav1.ObjectMeta{Name: "p", ResourceVersion: "40"},
			})
		default:
			sendFrames(t, w, podFrame(t, "MODIFIED", "p", "41"))
			<-r.Context().Done()
		}
	})
	c, _ := fluent.New(ws.srv.URL)
	watcher, err := New(fluent.For[corev1.Pod](c).Namespace("ns").Name("p"), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	if watcher.listWatch {
		t.Fatal("named request should default to a single-item watch")
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "MODIFIED rv=41")
	watcher.Stop()
	wait()

	got := tr.all()
	want := []string{"open", "reset", "ADDED rv=40", "open", "MODIFIED rv=41", "closed"}
	if len(got) != len(want) {
		t.Fatalf("callback sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callback sequence = %v, want %v", got, want)
		}
	}
	calls := ws.recorded()
	if calls[len(calls)-1] != "watch rv=40" {
		t.Fatalf("resume should use the re-fetched version, calls = %v", calls)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	tr := newTrace()
	ws := newWatchServer(t, func(n int, isWatch bool, rv string, w http.ResponseWriter, r *http.Request) {
		sendFrames(t, w, podFrame(t, "ADDED", "a", "6"))
		<-r.Context().Done()
	})
	c, _ := fluent.New(ws.srv.URL)
	watcher, err := New(fluent.For[corev1.Pod](c), "5", hooksForTrace[corev1.Pod](tr))
	if err != nil {
		t.Fatalf("New watcher returned error: %v", err)
	}
	wait := runWatcher(t, watcher)
	tr.waitFor(t, "ADDED rv=6")
	watcher.Stop()
	watcher.Stop()
	wait()
	watcher.Stop()

	closes := 0
	for _, ev := range tr.all() {
		if ev == "closed" {
			closes++
		}
	}
	if closes != 1 {
		t.Fatalf("Closed must be emitted exactly once, got %d", closes)
	}
}

func TestWatcherRejectsWatchRequests(t *testing.T) {
	c, _ := fluent.New("https://k.example/")
	if _, err := New(fluent.For[corev1.Pod](c).Watch("1"), "", Hooks[corev1.Pod]{}); err == nil {
		t.Fatal("expected error for pre-watched request")
	}
}
