package fluent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"

	"github.com/example/kfl/pkg/scheme"
)

// Request accumulates an HTTP call against the Kubernetes API. Setters chain
// and return the receiver; a request is conventionally frozen once executed,
// and Clone produces independent variations. Builder misuse (reserved
// headers, a raw URI without a leading slash) is held as a sticky error; a
// raw URI mixed with piecemeal components is rejected when the URL renders.
// Both surface at execution.
type Request struct {
	c   *Client
	err error

	method string
	rawURI string

	group       string
	version     string
	namespace   string
	resource    string
	name        string
	subresource string

	accept    string
	mediaType string
	headers   *pairList
	query     *pairList

	body        any
	stream      bool
	watch       *string
	legacyWatch bool
}

// Verb sets the HTTP method. The default is GET.
func (r *Request) Verb(method string) *Request {
	r.method = method
	return r
}

// Get sets the method to GET.
func (r *Request) Get() *Request { return r.Verb(http.MethodGet) }

// Post sets the method to POST.
func (r *Request) Post() *Request { return r.Verb(http.MethodPost) }

// Put sets the method to PUT.
func (r *Request) Put() *Request { return r.Verb(http.MethodPut) }

// Delete sets the method to DELETE.
func (r *Request) Delete() *Request { return r.Verb(http.MethodDelete) }

// Patch sets the method to PATCH and the body media type to the given patch
// flavor. The body is passed through as provided; the builder composes no
// patches itself.
func (r *Request) Patch(pt types.PatchType) *Request {
	r.method = http.MethodPatch
	r.mediaType = string(pt)
	return r
}

// Group sets the API group; empty selects the core group.
func (r *Request) Group(group string) *Request {
	r.group = group
	return r
}

// Version sets the API version; empty falls back to v1 at render time.
func (r *Request) Version(version string) *Request {
	r.version = version
	return r
}

// Namespace scopes the request to a namespace; empty clears the scope.
func (r *Request) Namespace(namespace string) *Request {
	r.namespace = namespace
	return r
}

// Resource sets the plural resource path segment, e.g. "pods".
func (r *Request) Resource(resource string) *Request {
	r.resource = resource
	return r
}

// Name targets a single object; empty targets the collection.
func (r *Request) Name(name string) *Request {
	r.name = name
	return r
}

// Subresource appends sub-endpoint segments, percent-encoding each part.
func (r *Request) Subresource(parts ...string) *Request {
	escaped := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(p))
	}
	r.subresource = strings.Join(escaped, "/")
	return r
}

// Status targets the status subresource.
func (r *Request) Status() *Request { return r.Subresource("status") }

// Scale targets the scale subresource.
func (r *Request) Scale() *Request { return r.Subresource("scale") }

// Log targets the log subresource.
func (r *Request) Log() *Request { return r.Subresource("log") }

// Exec targets the exec subresource.
func (r *Request) Exec() *Request { return r.Subresource("exec") }

// RawURI bypasses piecemeal URL construction with an absolute path from the
// cluster host. The path must begin with a slash; combining it with piecemeal
// components is rejected at render time.
func (r *Request) RawURI(uri string) *Request {
	if uri != "" && !strings.HasPrefix(uri, "/") {
		r.fail(fmt.Errorf("raw URI %q must begin with /", uri))
		return r
	}
	r.rawURI = uri
	return r
}

// Accept sets the Accept header value. The default is application/json.
func (r *Request) Accept(mediaType string) *Request {
	r.accept = mediaType
	return r
}

// MediaType sets the Content-Type used when a body is present.
func (r *Request) MediaType(mediaType string) *Request {
	r.mediaType = mediaType
	return r
}

// Header adds custom header values. Accept and Content-Type are reserved and
// rejected; use the dedicated setters.
func (r *Request) Header(key string, values ...string) *Request {
	switch {
	case strings.EqualFold(key, "Accept"), strings.EqualFold(key, "Content-Type"):
		r.fail(fmt.Errorf("header %q is reserved", key))
		return r
	}
	r.headers.add(key, values...)
	return r
}

// Param adds query parameter values, preserving insertion order.
func (r *Request) Param(key string, values ...string) *Request {
	r.query.add(key, values...)
	return r
}

// Body sets the request body: raw bytes, an io.Reader, a string, or any other
// object serialized as JSON. Nil clears the body.
func (r *Request) Body(v any) *Request {
	r.body = v
	return r
}

// Stream asks for the response to be returned after headers instead of
// buffering the full body; the caller then owns disposal.
func (r *Request) Stream(on bool) *Request {
	r.stream = on
	return r
}

// Watch turns the request into a watch. An empty resourceVersion watches from
// the current state; a token resumes from that version. Watches always
// stream.
func (r *Request) Watch(resourceVersion string) *Request {
	rv := resourceVersion
	r.watch = &rv
	return r
}

// LegacyWatchPath selects the /api/v1/watch/... path layout instead of the
// ?watch=1 query form.
func (r *Request) LegacyWatchPath(on bool) *Request {
	r.legacyWatch = on
	return r
}

// DryRun toggles dryRun=All.
func (r *Request) DryRun(on bool) *Request {
	if on {
		r.query.set("dryRun", "All")
	} else {
		r.query.del("dryRun")
	}
	return r
}

// FieldManager sets the field manager name recorded for mutations.
func (r *Request) FieldManager(name string) *Request {
	r.query.set("fieldManager", name)
	return r
}

// FieldSelector restricts a list or watch by field selector.
func (r *Request) FieldSelector(selector string) *Request {
	r.query.set("fieldSelector", selector)
	return r
}

// LabelSelector restricts a list or watch by label selector.
func (r *Request) LabelSelector(selector string) *Request {
	r.query.set("labelSelector", selector)
	return r
}

// Limit caps the number of items returned by a list.
func (r *Request) Limit(n int64) *Request {
	r.query.set("limit", strconv.FormatInt(n, 10))
	return r
}

// Continue resumes a chunked list from a continue token.
func (r *Request) Continue(token string) *Request {
	r.query.set("continue", token)
	return r
}

// TimeoutSeconds bounds a list or watch call server-side.
func (r *Request) TimeoutSeconds(n int64) *Request {
	r.query.set("timeoutSeconds", strconv.FormatInt(n, 10))
	return r
}

// GVK addresses the request from an apiVersion/kind pair, deriving the plural
// path heuristically.
func (r *Request) GVK(apiVersion, kind string) *Request {
	group, version := splitAPIVersion(apiVersion)
	r.group = group
	r.version = version
	r.resource = scheme.GuessPath(kind)
	return r
}

// Obj addresses the request from an object: GVK from its declared
// apiVersion/kind when present (otherwise from the scheme), namespace from
// its metadata, and name only when the object carries a UID — an empty UID
// means the object is being created, so the collection is targeted. With
// setBody the object becomes the request body.
func (r *Request) Obj(obj any, setBody bool) *Request {
	gvk := declaredGVK(obj)
	if !gvk.Empty() {
		r.group = gvk.Group
		r.version = gvk.Version
		r.resource = scheme.GuessPath(gvk.Kind)
	} else {
		info, err := r.c.scheme.Lookup(obj)
		if err != nil {
			r.fail(fmt.Errorf("resolve object type: %w", err))
			return r
		}
		r.group = info.GVK.Group
		r.version = info.GVK.Version
		r.resource = info.Path
	}
	if meta, ok := obj.(metav1.Object); ok {
		r.namespace = meta.GetNamespace()
		if meta.GetUID() != "" {
			r.name = meta.GetName()
		} else {
			r.name = ""
		}
	}
	if setBody {
		r.body = obj
	}
	return r
}

// Clone deep-copies the request: header and query multimaps are independent,
// while the client handle (transport, credentials, scheme) is shared.
func (r *Request) Clone() *Request {
	out := *r
	out.headers = r.headers.clone()
	out.query = r.query.clone()
	if r.watch != nil {
		rv := *r.watch
		out.watch = &rv
	}
	return &out
}

// Client returns the shared client handle behind the request.
func (r *Request) Client() *Client { return r.c }

// Method returns the HTTP method the request will use.
func (r *Request) Method() string { return r.method }

// HasName reports whether the request targets a single named object.
func (r *Request) HasName() bool { return r.name != "" }

// IsWatch reports whether the request has been turned into a watch.
func (r *Request) IsWatch() bool { return r.watch != nil }

// Err returns the sticky builder error, if any.
func (r *Request) Err() error { return r.err }

func (r *Request) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// URL renders the request target.
//
//	{base}/{apis/<group> | api}/<version>[/watch][/namespaces/<ns>]/<type>[/<name>][/<subresource>]?...
func (r *Request) URL() (*url.URL, error) {
	if r.err != nil {
		return nil, r.err
	}
	u := *r.c.base
	if r.rawURI != "" {
		if r.group != "" || r.version != "" || r.namespace != "" || r.resource != "" || r.name != "" || r.subresource != "" {
			return nil, fmt.Errorf("raw URI cannot be combined with piecemeal URL components")
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + r.rawURI
	} else {
		if r.resource == "" {
			return nil, fmt.Errorf("request has no resource type and no raw URI")
		}
		var b strings.Builder
		if r.group != "" {
			b.WriteString("/apis/")
			b.WriteString(url.PathEscape(r.group))
		} else {
			b.WriteString("/api")
		}
		version := r.version
		if version == "" {
			version = "v1"
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(version))
		if r.watch != nil && r.legacyWatch {
			b.WriteString("/watch")
		}
		if r.namespace != "" {
			b.WriteString("/namespaces/")
			b.WriteString(url.PathEscape(r.namespace))
		}
		b.WriteString("/")
		b.WriteString(url.PathEscape(r.resource))
		if r.name != "" {
			b.WriteString("/")
			b.WriteString(url.PathEscape(r.name))
		}
		if r.subresource != "" {
			b.WriteString("/")
			b.WriteString(r.subresource)
		}
		escaped := strings.TrimSuffix(u.EscapedPath(), "/") + b.String()
		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			return nil, fmt.Errorf("render request path: %w", err)
		}
		u.Path, u.RawPath = unescaped, escaped
	}
	u.RawQuery = r.renderQuery()
	return &u, nil
}

func (r *Request) renderQuery() string {
	var b strings.Builder
	appendParam := func(key, value string) {
		if b.Len() > 0 {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(value))
	}
	r.query.each(func(key string, vals []string) {
		for _, v := range vals {
			appendParam(key, v)
		}
	})
	if r.watch != nil {
		if !r.legacyWatch {
			appendParam("watch", "1")
		}
		if *r.watch != "" {
			appendParam("resourceVersion", *r.watch)
		}
	}
	return b.String()
}

// HTTPRequest renders the outbound http.Request without sending it: URL,
// Accept, custom headers, serialized body, and credentials. The executor and
// the SPDY upgrade share this path.
func (r *Request) HTTPRequest(ctx context.Context) (*http.Request, error) {
	u, err := r.URL()
	if err != nil {
		return nil, err
	}
	var body io.Reader
	hasBody := true
	switch b := r.body.(type) {
	case nil:
		hasBody = false
	case []byte:
		body = bytes.NewReader(b)
	case io.Reader:
		body = b
	case string:
		body = strings.NewReader(b)
	default:
		data, err := Marshal(b)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", r.accept)
	r.headers.each(func(key string, vals []string) {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	})
	if hasBody {
		req.Header.Set("Content-Type", r.mediaType+"; charset=UTF-8")
	}
	if r.c.creds != nil {
		if err := r.c.creds.Apply(req); err != nil {
			return nil, fmt.Errorf("apply credentials: %w", err)
		}
	}
	return req, nil
}

func splitAPIVersion(apiVersion string) (group, version string) {
	if i := strings.Index(apiVersion, "/"); i >= 0 {
		return apiVersion[:i], apiVersion[i+1:]
	}
	return "", apiVersion
}

func declaredGVK(obj any) schema.GroupVersionKind {
	kinded, ok := obj.(interface{ GetObjectKind() schema.ObjectKind })
	if !ok {
		return schema.GroupVersionKind{}
	}
	return kinded.GetObjectKind().GroupVersionKind()
}
