package jsonrpc

// contextKey is a private type so values stashed in a context.Context by
// this module never collide with keys from other packages.
type contextKey int

const (
	sessionContextKey contextKey = iota
)

// SessionKey is the context.Context key under which a transport stores its
// session handle. It is exported so
// transports in separate packages can agree on where to find it without
// importing one another.
var SessionKey = sessionContextKey
