package httpx

import (
	"context"
	"slices"
	"strings"
)

// Handler turns a parsed request into a response. The same Handler may
// serve many connections at once. The server never modifies the returned
// Message, so a prebuilt response may be returned from every call.
type Handler interface {
	ServeFrames(ctx context.Context, req *Message) (*Message, error)
}

type HandlerFunc func(ctx context.Context, req *Message) (*Message, error)

func (f HandlerFunc) ServeFrames(ctx context.Context, req *Message) (*Message, error) {
	return f(ctx, req)
}

// Route binds a method and a URI prefix to a Handler.
type Route struct {
	Method  Method
	Prefix  string
	Handler Handler
}

// Router matches requests against routes ordered by descending prefix
// length, so "/files/" is tried before "/". Routes of equal length keep
// their insertion order. A Router must not be modified once it serves
// requests.
type Router struct {
	routes []Route
}

func NewRouter() *Router {
	return &Router{}
}

func (r *Router) AddRoute(method Method, prefix string, h Handler) *Router {
	r.routes = append(r.routes, Route{Method: method, Prefix: prefix, Handler: h})
	slices.SortStableFunc(r.routes, func(a, b Route) int {
		return len(b.Prefix) - len(a.Prefix)
	})
	return r
}

func (r *Router) HandleFunc(method Method, prefix string, f func(context.Context, *Message) (*Message, error)) *Router {
	return r.AddRoute(method, prefix, HandlerFunc(f))
}

// Match returns the handler of the first route whose method equals method
// and whose prefix is a prefix of uri.
func (r *Router) Match(method Method, uri string) (Handler, bool) {
	for _, rt := range r.routes {
		if rt.Method == method && strings.HasPrefix(uri, rt.Prefix) {
			return rt.Handler, true
		}
	}
	return nil, false
}

// Routes returns a copy of the table in match order.
func (r *Router) Routes() []Route {
	return slices.Clone(r.routes)
}
