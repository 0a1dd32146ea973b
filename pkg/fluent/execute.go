package fluent

import (
	"context"
	"fmt"
	"io"
)

// Do executes the request and returns the response without classifying HTTP
// errors; callers inspect the response themselves. Watch requests and
// requests marked Stream return after headers with the caller owning the body
// stream; everything else is buffered and needs no disposal.
//
// The request itself is never mutated by execution: concurrent executions of
// the same request are independent HTTP calls.
func (r *Request) Do(ctx context.Context) (*Response, error) {
	return r.do(ctx, r.stream || r.watch != nil)
}

// DoChecked is Do, raising a StatusError for any error response other than
// 404.
func (r *Request) DoChecked(ctx context.Context) (*Response, error) {
	resp, err := r.Do(ctx)
	if err != nil {
		return nil, err
	}
	if resp.IsError() && !resp.IsNotFound() {
		err := resp.Err()
		resp.Close()
		return nil, err
	}
	return resp, nil
}

func (r *Request) do(ctx context.Context, streaming bool) (*Response, error) {
	req, err := r.HTTPRequest(ctx)
	if err != nil {
		return nil, err
	}
	res, err := r.c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	resp := &Response{raw: res, verb: r.method, name: r.name}
	if streaming {
		return resp, nil
	}
	data, readErr := io.ReadAll(res.Body)
	res.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL, readErr)
	}
	resp.body = data
	resp.buffered = true
	return resp, nil
}

// As executes the request buffered and decodes the body as T. A 404 returns
// nil without error unless required is set; any other error response raises a
// StatusError.
func As[T any](ctx context.Context, r *Request, required bool) (*T, error) {
	resp, err := r.do(ctx, false)
	if err != nil {
		return nil, err
	}
	if resp.IsNotFound() && !required {
		return nil, nil
	}
	if resp.IsError() {
		return nil, resp.Err()
	}
	out := new(T)
	if err := resp.Into(out); err != nil {
		return nil, err
	}
	return out, nil
}
