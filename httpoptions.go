package relay

import (
	"net/http"

	"golang.org/x/exp/slog"
)

type HTTPHandlerOptions struct {
	// MaxBodySize is limiting the size of a request body
	// (message or uploaded object). Default: 32 MB.
	MaxBodySize int64

	// IsAuthorized is the middleware used to validate
	// if the incoming request to the relay endpoints is
	// considered authorized. By default all request will
	// be considered authorized.
	IsAuthorized func(http.Handler) http.Handler

	// AllowedOrigins for cross origin requests. By
	// default every origin is allowed.
	AllowedOrigins []string

	// Bucket exposes the local object store under /objects
	// so the external producer can read queries and write
	// responses. Nil disables the routes.
	Bucket *Bucket

	// Logger of the handler. Default: text logger to stdout.
	Logger *slog.Logger
}

func DefaultHTTPHandlerOptions() HTTPHandlerOptions {
	const mib32 = 2 << 24
	opts := HTTPHandlerOptions{}

	opts.MaxBodySize = mib32
	opts.IsAuthorized = isAuthorized
	opts.AllowedOrigins = []string{"*"}
	return opts
}

// isAuthorized is the default authorization middleware which accepts all requests.
func isAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
	})
}
