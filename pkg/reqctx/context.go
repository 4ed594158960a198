// Package reqctx holds the request context that workers read and mutate during
// dispatch, and the mutation log that carries those mutations back to a caller
// running in another process.
package reqctx

import (
	"sort"
	"sync"
)

const (
	defaultStatus      = 200
	defaultContentType = "text/html"
)

// Snapshot is the point-in-time copy of a request carried on the wire with every message.
type Snapshot struct {
	Area      string `json:"area"`
	URI       string `json:"uri"`
	Method    string `json:"method"`
	UserID    int    `json:"user_id"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// Cookie is a cookie queued for the outgoing response.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	TTL   int    `json:"ttl"`
	Path  string `json:"path"`
}

// Callout is a user-facing message queued for the rendered view.
type Callout struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Context is the request/response state of one request. It is passed
// explicitly to dispatch; there is no process-wide instance.
type Context struct {
	mu sync.Mutex

	area      string
	theme     string
	uri       string
	uriLocked bool
	method    string
	userID    int
	ip        string
	userAgent string

	cookies     map[string]Cookie
	status      int
	contentType string
	headers     map[string]string
	vars        map[string]any
	callouts    []Callout

	log   []Mutation
	depth int
}

// New returns an empty context with response defaults applied.
func New() *Context {
	return &Context{
		cookies:     make(map[string]Cookie),
		status:      defaultStatus,
		contentType: defaultContentType,
		headers:     make(map[string]string),
		vars:        make(map[string]any),
	}
}

// FromSnapshot rebuilds a context from a wire snapshot. Listeners use it to
// give remote workers the caller's request view.
func FromSnapshot(s Snapshot) *Context {
	c := New()
	c.area = s.Area
	c.uri = s.URI
	c.method = s.Method
	c.userID = s.UserID
	c.ip = s.IP
	c.userAgent = s.UserAgent
	return c
}

// SetRequest fills the read-only request fields. Entry points call it once
// before any dispatch.
func (c *Context) SetRequest(method, ip, userAgent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.method = method
	c.ip = ip
	c.userAgent = userAgent
}

// Snapshot copies the request fields.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Area:      c.area,
		URI:       c.uri,
		Method:    c.method,
		UserID:    c.userID,
		IP:        c.ip,
		UserAgent: c.userAgent,
	}
}

// Area returns the site area.
func (c *Context) Area() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.area
}

// Theme returns the active theme.
func (c *Context) Theme() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.theme
}

// URI returns the request URI.
func (c *Context) URI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uri
}

// URILocked reports whether the last SetURI locked the URI against further routing.
func (c *Context) URILocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uriLocked
}

// Method returns the request method.
func (c *Context) Method() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method
}

// UserID returns the authenticated user id, 0 when anonymous.
func (c *Context) UserID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// IP returns the client address.
func (c *Context) IP() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ip
}

// UserAgent returns the client user agent.
func (c *Context) UserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userAgent
}

// Cookie returns a queued cookie by name.
func (c *Context) Cookie(name string) (Cookie, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ck, ok := c.cookies[name]
	return ck, ok
}

// Cookies returns all queued cookies sorted by name.
func (c *Context) Cookies() []Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Cookie, 0, len(c.cookies))
	for _, ck := range c.cookies {
		out = append(out, ck)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResponseStatus returns the HTTP status queued for the response.
func (c *Context) ResponseStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ContentType returns the queued response content type.
func (c *Context) ContentType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentType
}

// Header returns a response header value.
func (c *Context) Header(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[name]
}

// Headers returns a copy of the response headers.
func (c *Context) Headers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		out[k] = v
	}
	return out
}

// Var returns a value assigned to the view.
func (c *Context) Var(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars[key]
	return v, ok
}

// Callouts returns the queued callouts in order.
func (c *Context) Callouts() []Callout {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Callout(nil), c.callouts...)
}

// SetArea switches the active area (e.g. "admin", "public").
func (c *Context) SetArea(area string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.area = area
	c.record(ActionSetArea, area)
}

// SetTheme switches the theme.
func (c *Context) SetTheme(theme string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theme = theme
	c.record(ActionSetTheme, theme)
}

// SetURI rewrites the request URI. A locked URI is not re-routed by the front controller.
func (c *Context) SetURI(uri string, locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uri = uri
	c.uriLocked = locked
	c.record(ActionSetURI, uri, locked)
}

// SetUserID sets the authenticated user id.
func (c *Context) SetUserID(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
	c.record(ActionSetUserID, id)
}

// SetCookie queues a cookie; ttl is in seconds from now.
func (c *Context) SetCookie(name, value string, ttl int, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[name] = Cookie{Name: name, Value: value, TTL: ttl, Path: path}
	c.record(ActionSetCookie, name, value, ttl, path)
}

// SetResponseStatus queues the HTTP status of the response.
func (c *Context) SetResponseStatus(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = code
	c.record(ActionSetResStatus, code)
}

// SetContentType queues the response content type.
func (c *Context) SetContentType(contentType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contentType = contentType
	c.record(ActionSetResContentType, contentType)
}

// SetHeader queues a response header.
func (c *Context) SetHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[name] = value
	c.record(ActionSetResHeader, name, value)
}

// Assign sets a view variable.
func (c *Context) Assign(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = value
	c.record(ActionViewAssign, key, value)
}

// AddCallout queues a message for the view; typ is "success", "error", "info" or "warning".
func (c *Context) AddCallout(message, typ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callouts = append(c.callouts, Callout{Message: message, Type: typ})
	c.record(ActionViewCallout, message, typ)
}
