// Package exec runs commands inside containers over an upgraded SPDY/3.1
// connection. The HTTP/1 response body is unidirectional; exec needs
// multiplexed full-duplex streams (stdin, stdout, stderr) plus an error
// channel that doubles as the exit status carrier, which is why the channel
// upgrades rather than streaming the response.
package exec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/moby/spdystream"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	remotecommandconsts "k8s.io/apimachinery/pkg/util/remotecommand"

	"github.com/example/kfl/pkg/fluent"
)

// StreamOptions selects which standard streams attach to the remote command.
// At least one must be set. Timeout bounds the whole session; zero means no
// bound beyond the caller's context.
type StreamOptions struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	TTY     bool
	Timeout time.Duration
}

// Result is the outcome of a finished command.
type Result struct {
	Status   *metav1.Status
	ExitCode int
}

// CommandError reports a command that the server marked failed.
type CommandError struct {
	Result *Result
}

func (e *CommandError) Error() string {
	if e.Result.ExitCode >= 0 {
		return fmt.Sprintf("command terminated with exit code %d", e.Result.ExitCode)
	}
	if e.Result.Status != nil && e.Result.Status.Message != "" {
		return "command failed: " + e.Result.Status.Message
	}
	return "command failed"
}

// Executor upgrades an exec request and drives the stream channel.
type Executor struct {
	req       *fluent.Request
	log       logr.Logger
	protocols []string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger attaches a logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithProtocols overrides the offered subprotocol versions, newest first.
func WithProtocols(protocols ...string) Option {
	return func(e *Executor) { e.protocols = protocols }
}

// Command stamps the standard exec addressing onto a pod request: the exec
// subresource, the target container, and the command argument vector.
func Command(r *fluent.Request, container string, command ...string) *fluent.Request {
	r.Exec()
	if container != "" {
		r.Param("container", container)
	}
	for _, arg := range command {
		r.Param("command", arg)
	}
	return r
}

// New builds an Executor over an exec request. Watch requests cannot be
// upgraded.
func New(req *fluent.Request, opts ...Option) (*Executor, error) {
	if err := req.Err(); err != nil {
		return nil, err
	}
	if req.IsWatch() {
		return nil, fmt.Errorf("watch requests cannot be upgraded for exec")
	}
	e := &Executor{
		req: req.Clone(),
		log: logr.Discard(),
		protocols: []string{
			remotecommandconsts.StreamProtocolV4Name,
			remotecommandconsts.StreamProtocolV3Name,
			remotecommandconsts.StreamProtocolV2Name,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run is Stream, raising a CommandError when the server reports failure.
func (e *Executor) Run(ctx context.Context, opts StreamOptions) (*Result, error) {
	res, err := e.Stream(ctx, opts)
	if err != nil {
		return nil, err
	}
	if res.Status != nil && res.Status.Status == metav1.StatusFailure {
		return res, &CommandError{Result: res}
	}
	return res, nil
}

// Stream upgrades the connection, wires the streams, and runs the command to
// completion, returning its status without judging it.
//
// The server will not start the command until every advertised stream exists,
// and misbehaves if stdin bytes arrive before stream acceptance. Streams are
// therefore created in a fixed order (error, stdin, stdout, stderr), each
// waited for acknowledgement, and the stdin copy starts only after the whole
// set is acknowledged.
func (e *Executor) Stream(ctx context.Context, opts StreamOptions) (*Result, error) {
	if opts.Stdin == nil && opts.Stdout == nil && opts.Stderr == nil {
		return nil, fmt.Errorf("at least one of stdin, stdout, or stderr must be attached")
	}
	req := e.req.Clone().Post().Body(nil).Stream(true)
	if opts.Stdin != nil {
		req.Param("stdin", "true")
	}
	if opts.Stdout != nil {
		req.Param("stdout", "true")
	}
	if opts.Stderr != nil {
		req.Param("stderr", "true")
	}
	if opts.TTY {
		req.Param("tty", "true")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.Timeout)
		defer cancelTimeout()
	}

	conn, protocol, err := upgrade(ctx, req, e.protocols)
	if err != nil {
		return nil, err
	}
	spdyConn, err := spdystream.NewConnection(conn, false)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "create SPDY connection")
	}
	go spdyConn.Serve(func(s *spdystream.Stream) {
		e.log.V(1).Info("resetting unexpected server-initiated stream")
		s.Reset()
	})
	defer spdyConn.Close()
	go func() {
		<-ctx.Done()
		spdyConn.Close()
	}()

	create := func(kind string) (*spdystream.Stream, error) {
		headers := http.Header{}
		headers.Set(corev1.StreamType, kind)
		s, err := spdyConn.CreateStream(headers, nil, false)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s stream", kind)
		}
		if err := s.WaitTimeout(remotecommandconsts.DefaultStreamCreationTimeout); err != nil {
			return nil, errors.Wrapf(err, "wait for %s stream acknowledgement", kind)
		}
		return s, nil
	}

	errorStream, err := create(corev1.StreamTypeError)
	if err != nil {
		return nil, err
	}
	var stdinStream, stdoutStream, stderrStream *spdystream.Stream
	if opts.Stdin != nil {
		if stdinStream, err = create(corev1.StreamTypeStdin); err != nil {
			return nil, err
		}
	}
	if opts.Stdout != nil {
		if stdoutStream, err = create(corev1.StreamTypeStdout); err != nil {
			return nil, err
		}
	}
	if opts.Stderr != nil {
		if stderrStream, err = create(corev1.StreamTypeStderr); err != nil {
			return nil, err
		}
	}

	// Every expected stream is acknowledged; stdin may flow now.
	if stdinStream != nil {
		go func() {
			if _, err := io.Copy(stdinStream, opts.Stdin); err != nil {
				e.log.V(1).Info("stdin copy ended", "reason", err.Error())
			}
			stdinStream.Close()
		}()
	}

	var errPayload []byte
	g := new(errgroup.Group)
	g.Go(func() error {
		data, err := io.ReadAll(errorStream)
		if err != nil {
			return errors.Wrap(err, "read error stream")
		}
		errPayload = data
		return nil
	})
	if stdoutStream != nil {
		g.Go(func() error {
			if _, err := io.Copy(opts.Stdout, stdoutStream); err != nil {
				return errors.Wrap(err, "copy stdout")
			}
			return nil
		})
	}
	if stderrStream != nil {
		g.Go(func() error {
			if _, err := io.Copy(opts.Stderr, stderrStream); err != nil {
				return errors.Wrap(err, "copy stderr")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return resultFromErrorStream(protocol, errPayload)
}
