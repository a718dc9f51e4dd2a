package social

import (
	"net/http"
)

// Details describe the request that authenticated.
type Details struct {
	RemoteAddr string
	UserAgent  string
}

// DetailsSource extracts Details from the callback request.
type DetailsSource interface {
	BuildDetails(r *http.Request) Details
}

// DetailsSourceFunc adapts a function to DetailsSource.
type DetailsSourceFunc func(r *http.Request) Details

func (f DetailsSourceFunc) BuildDetails(r *http.Request) Details { return f(r) }

// DefaultDetailsSource records the remote address and user agent. Put
// chi's RealIP middleware in front when running behind a proxy.
var DefaultDetailsSource DetailsSource = DetailsSourceFunc(func(r *http.Request) Details {
	return Details{RemoteAddr: r.RemoteAddr, UserAgent: r.UserAgent()}
})
