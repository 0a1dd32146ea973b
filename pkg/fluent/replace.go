package fluent

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ModifyFunc inspects and mutates an object, reporting whether anything
// changed. Returning false short-circuits the replace without a PUT.
type ModifyFunc[T any] func(ctx context.Context, obj *T) (changed bool, err error)

// Replace runs a get-modify-put loop against the object the request targets,
// retrying from a fresh GET on write conflicts. A nil initial object is
// fetched first. A 404 on either side returns nil unless required is set.
// Cancellation is checked at each iteration boundary.
func Replace[T any](ctx context.Context, r *Request, initial *T, modify ModifyFunc[T], required bool) (*T, error) {
	obj := initial
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if obj == nil {
			got, err := As[T](ctx, r.Clone().Get().Body(nil), required)
			if err != nil {
				return nil, err
			}
			if got == nil {
				return nil, nil
			}
			obj = got
		}
		changed, err := modify(ctx, obj)
		if err != nil {
			return nil, err
		}
		if !changed {
			return obj, nil
		}
		resp, err := r.Clone().Put().Body(obj).Do(ctx)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			statusErr := resp.Err()
			switch {
			case apierrors.IsConflict(statusErr):
				obj = nil
				continue
			case resp.IsNotFound() && !required:
				return nil, nil
			default:
				return nil, statusErr
			}
		}
		out := new(T)
		if err := resp.Into(out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
