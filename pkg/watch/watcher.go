package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/example/kfl/pkg/fluent"
)

// Hooks is the callback set a Watcher drives. All callbacks run serialized on
// the watcher's driver goroutine; nil entries are skipped.
type Hooks[T any] struct {
	// OnOpen fires when a watch HTTP stream opens successfully.
	OnOpen func()
	// OnInitialList fires once per fresh LIST, after its synthesized Added
	// batch. Only list-watches emit it.
	OnInitialList func()
	// OnEvent receives Added, Modified, and Deleted events. Bookmarks are
	// consumed internally.
	OnEvent func(Event[T])
	// OnReset signals that the tracked resource version could not be resumed
	// and downstream state must be rebuilt.
	OnReset func()
	// OnError fires for a terminal, non-resumable error.
	OnError func(error)
	// OnClose fires exactly once, after stop or a terminal error.
	OnClose func()
}

// Option configures a Watcher.
type Option[T any] func(*Watcher[T])

// WithLogger attaches a logger to the watcher.
func WithLogger[T any](log logr.Logger) Option[T] {
	return func(w *Watcher[T]) { w.log = log }
}

// WithListWatch overrides the collection/single-item detection, which
// otherwise follows whether the request names an object.
func WithListWatch[T any](isList bool) Option[T] {
	return func(w *Watcher[T]) { w.listWatch = isList; w.bookmarks = isList }
}

// WithBookmarks overrides bookmark negotiation, which defaults to on for
// list-watches.
func WithBookmarks[T any](on bool) Option[T] {
	return func(w *Watcher[T]) { w.bookmarks = on }
}

// WithBackoff replaces the reconnection backoff.
func WithBackoff[T any](b wait.Backoff) Option[T] {
	return func(w *Watcher[T]) { w.backoff = b }
}

// Watcher maintains a durable watch over the resource a request addresses:
// it tracks the resource version across events and bookmarks, reconnects on
// disconnect, and falls back to a fresh LIST (or GET, for single objects)
// when the server has compacted the tracked version away.
type Watcher[T any] struct {
	req       *fluent.Request
	hooks     Hooks[T]
	log       logr.Logger
	listWatch bool
	bookmarks bool
	backoff   wait.Backoff

	mu      sync.Mutex
	rv      string
	running bool

	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

var errExpired = errors.New("watch resource version expired")

// New builds a watcher over a plain (non-watch) request. initialVersion seeds
// resume; empty means "from current state", which for a list-watch triggers a
// bootstrap LIST before the first open.
func New[T any](req *fluent.Request, initialVersion string, hooks Hooks[T], opts ...Option[T]) (*Watcher[T], error) {
	if err := req.Err(); err != nil {
		return nil, err
	}
	if req.IsWatch() {
		return nil, fmt.Errorf("watcher requires a plain request; it adds watch parameters itself")
	}
	w := &Watcher[T]{
		req:       req.Clone(),
		hooks:     hooks,
		log:       logr.Discard(),
		listWatch: !req.HasName(),
		rv:        initialVersion,
		backoff:   wait.Backoff{Duration: 500 * time.Millisecond, Factor: 2, Jitter: 0.5, Steps: 7, Cap: 30 * time.Second},
		stop:      make(chan struct{}),
	}
	w.bookmarks = w.listWatch
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ResourceVersion returns the currently tracked resume token.
func (w *Watcher[T]) ResourceVersion() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rv
}

func (w *Watcher[T]) setVersion(rv string) {
	w.mu.Lock()
	w.rv = rv
	w.mu.Unlock()
}

// Stop aborts the watch. Idempotent; Closed is still emitted exactly once.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher[T]) closed() {
	w.closeOnce.Do(func() {
		if w.hooks.OnClose != nil {
			w.hooks.OnClose()
		}
	})
}

// Run drives the watch until the context is cancelled, Stop is called, or a
// non-resumable error occurs. A clean stream EOF reopens immediately from the
// tracked version; transport failures and decode errors reconnect with
// jittered exponential backoff. A successful open resets the backoff.
func (w *Watcher[T]) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer w.closed()

	backoff := w.backoff
	needList := w.listWatch && w.ResourceVersion() == ""
	for {
		if ctx.Err() != nil {
			return nil
		}
		if needList {
			if err := w.relist(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !retryable(err) {
					return w.terminal(err)
				}
				w.log.Error(err, "watch list failed, retrying")
				if !sleep(ctx, backoff.Step()) {
					return nil
				}
				continue
			}
			needList = false
		}
		err := w.streamOnce(ctx, &backoff)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
			// Clean EOF; resume immediately from the tracked version.
		case errors.Is(err, errExpired):
			w.log.V(1).Info("tracked resource version expired, rebuilding")
			if w.hooks.OnReset != nil {
				w.hooks.OnReset()
			}
			if w.listWatch {
				needList = true
			} else if err := w.resync(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !retryable(err) {
					return w.terminal(err)
				}
				if !sleep(ctx, backoff.Step()) {
					return nil
				}
			}
		case !retryable(err):
			return w.terminal(err)
		default:
			w.log.Error(err, "watch stream failed, retrying")
			if !sleep(ctx, backoff.Step()) {
				return nil
			}
		}
	}
}

func (w *Watcher[T]) terminal(err error) error {
	if w.hooks.OnError != nil {
		w.hooks.OnError(err)
	}
	return err
}

// streamOnce opens one watch stream and pumps it until EOF or error.
func (w *Watcher[T]) streamOnce(ctx context.Context, backoff *wait.Backoff) error {
	req := w.req.Clone().Get().Watch(w.ResourceVersion())
	if w.bookmarks {
		req.Param("allowWatchBookmarks", "true")
	}
	resp, err := req.Do(ctx)
	if err != nil {
		return err
	}
	if resp.IsError() {
		code := resp.StatusCode()
		statusErr := resp.Err()
		resp.Close()
		if code == http.StatusGone {
			return errExpired
		}
		return statusErr
	}
	*backoff = w.backoff
	if w.hooks.OnOpen != nil {
		w.hooks.OnOpen()
	}
	reader := NewReader[T](resp.Body())
	defer reader.Close()
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch ev.Type {
		case Bookmark:
			if ev.ResourceVersion != "" {
				w.setVersion(ev.ResourceVersion)
			}
		case Error:
			if isExpired(ev.Status) {
				return errExpired
			}
			return &apierrors.StatusError{ErrStatus: *ev.Status}
		case Added, Modified, Deleted:
			if ev.ResourceVersion != "" {
				w.setVersion(ev.ResourceVersion)
			}
			if w.hooks.OnEvent != nil {
				w.hooks.OnEvent(ev)
			}
		default:
			w.log.V(1).Info("skipping unknown watch event", "type", string(ev.Type))
		}
	}
}

// relist rebuilds the baseline for a list-watch: fresh LIST, synthesized
// Added events for every item, then OnInitialList, with the collection's
// resourceVersion as the new resume token.
func (w *Watcher[T]) relist(ctx context.Context) error {
	list, err := fluent.As[fluent.List[T]](ctx, w.req.Clone().Get(), true)
	if err != nil {
		return err
	}
	w.setVersion(list.Metadata.ResourceVersion)
	for i := range list.Items {
		item := &list.Items[i]
		if w.hooks.OnEvent != nil {
			w.hooks.OnEvent(Event[T]{Type: Added, Object: item, ResourceVersion: objectVersion(item)})
		}
	}
	if w.hooks.OnInitialList != nil {
		w.hooks.OnInitialList()
	}
	return nil
}

// resync re-fetches a single watched object after its version expired.
func (w *Watcher[T]) resync(ctx context.Context) error {
	obj, err := fluent.As[T](ctx, w.req.Clone().Get(), false)
	if err != nil {
		return err
	}
	if obj == nil {
		w.setVersion("")
		return nil
	}
	rv := objectVersion(obj)
	w.setVersion(rv)
	if w.hooks.OnEvent != nil {
		w.hooks.OnEvent(Event[T]{Type: Added, Object: obj, ResourceVersion: rv})
	}
	return nil
}

func objectVersion[T any](obj *T) string {
	if m, ok := any(obj).(metav1.Object); ok {
		return m.GetResourceVersion()
	}
	return ""
}

func isExpired(status *metav1.Status) bool {
	if status == nil {
		return false
	}
	return status.Reason == metav1.StatusReasonExpired || status.Code == http.StatusGone
}

// retryable separates transient failures (transport errors, 5xx, throttling)
// from non-resumable ones.
func retryable(err error) bool {
	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.ErrStatus.Code
		return code >= 500 || code == http.StatusTooManyRequests
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
