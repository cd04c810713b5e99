package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// Router mounts route groups under /api/<version>. Middleware added with Use
// applies to the versioned API only, never to the bare /health check.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	groups     []*RouteGroup
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the API prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router serving /api/v1 unless configured otherwise
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds API-wide middleware
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Mount queues groups for Setup
func (r *Router) Mount(groups ...*RouteGroup) *Router {
	r.groups = append(r.groups, groups...)
	return r
}

// Setup registers every mounted group on the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.Prefix())
	api.Use(r.middleware...)
	for _, g := range r.groups {
		g.register(api)
	}
}

// Prefix is the API path prefix, e.g. /api/v1
func (r *Router) Prefix() string {
	return "/api/" + r.apiVersion
}

// Routes lists every route the mounted groups declare, with full paths
func (r *Router) Routes() []RouteInfo {
	var out []RouteInfo
	for _, g := range r.groups {
		out = g.collect(r.Prefix(), out)
	}
	return out
}

// RouteInfo describes one declared route
type RouteInfo struct {
	Method string
	Path   string
}

// RouteGroup collects the routes of one resource (bills, payments, ...)
// before they are bound to gin
type RouteGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	children   []*RouteGroup
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a group rooted at prefix
func NewGroup(prefix string) *RouteGroup {
	return &RouteGroup{prefix: prefix}
}

// Prefix returns the group's path prefix
func (g *RouteGroup) Prefix() string {
	return g.prefix
}

// Use adds middleware for this group and its children
func (g *RouteGroup) Use(middleware ...gin.HandlerFunc) *RouteGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

// Handle declares a route
func (g *RouteGroup) Handle(method, relativePath string, handlers ...gin.HandlerFunc) *RouteGroup {
	g.routes = append(g.routes, route{method: method, path: relativePath, handlers: handlers})
	return g
}

// GET declares a GET route
func (g *RouteGroup) GET(relativePath string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodGet, relativePath, handlers...)
}

// POST declares a POST route
func (g *RouteGroup) POST(relativePath string, handlers ...gin.HandlerFunc) *RouteGroup {
	return g.Handle(http.MethodPost, relativePath, handlers...)
}

// Group declares a nested group
func (g *RouteGroup) Group(prefix string) *RouteGroup {
	child := NewGroup(prefix)
	g.children = append(g.children, child)
	return child
}

func (g *RouteGroup) register(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix)
	rg.Use(g.middleware...)
	for _, rt := range g.routes {
		rg.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range g.children {
		child.register(rg)
	}
}

func (g *RouteGroup) collect(base string, out []RouteInfo) []RouteInfo {
	base = path.Join(base, g.prefix)
	for _, rt := range g.routes {
		out = append(out, RouteInfo{Method: rt.method, Path: joinRoute(base, rt.path)})
	}
	for _, child := range g.children {
		out = child.collect(base, out)
	}
	return out
}

// joinRoute keeps gin's notion of "" as the group root
func joinRoute(base, rel string) string {
	if rel == "" {
		return base
	}
	return path.Join(base, rel)
}
