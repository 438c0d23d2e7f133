/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/vasayxtx/go-glob"
)

// Route binds a rate limiting policy to HTTP requests with the matching path and method.
type Route struct {
	// PathPattern is a glob pattern matched against the cleaned URL path of the request.
	// "*" stands for any sequence of characters including "/", e.g. "*/upload" matches "/domain1/upload".
	PathPattern string

	// Methods are upper-cased HTTP methods. Empty means any method.
	Methods []string

	Policy Policy

	matchPath func(string) bool
}

// NewRoute creates a new Route. Methods are case-insensitive.
func NewRoute(pathPattern string, policy Policy, methods ...string) (Route, error) {
	if !policy.valid() {
		return Route{}, fmt.Errorf("unknown rate limit policy %d", int(policy))
	}
	pathPattern = strings.TrimSpace(pathPattern)
	if pathPattern == "" {
		return Route{}, errors.New("path pattern is missing")
	}
	if !strings.HasPrefix(pathPattern, "/") && !strings.HasPrefix(pathPattern, glob.GLOB) {
		return Route{}, fmt.Errorf("path pattern %q should start with \"/\" or \"*\"", pathPattern)
	}
	upperMethods := make([]string, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if !slices.Contains(knownHTTPMethods, m) {
			return Route{}, fmt.Errorf("unknown method %q", m)
		}
		upperMethods = append(upperMethods, m)
	}
	return Route{
		PathPattern: pathPattern,
		Methods:     upperMethods,
		Policy:      policy,
		matchPath:   glob.Compile(pathPattern),
	}, nil
}

// MustNewRoute is a version of NewRoute that panics if an error occurs.
func MustNewRoute(pathPattern string, policy Policy, methods ...string) Route {
	route, err := NewRoute(pathPattern, policy, methods...)
	if err != nil {
		panic(err)
	}
	return route
}

func (r *Route) matches(cleanPath, method string) bool {
	if len(r.Methods) != 0 && !slices.Contains(r.Methods, method) {
		return false
	}
	return r.matchPath(cleanPath)
}

// DefaultRoutes returns routes of the standard validation entry points under any prefix (e.g. error domain):
// web form uploads (file and multiple inputs) and REST API validation (single and batch).
func DefaultRoutes() []Route {
	return []Route{
		MustNewRoute("*/upload", PolicyUIValidate, http.MethodPost),
		MustNewRoute("*/uploadm", PolicyUIValidate, http.MethodPost),
		MustNewRoute("*/api/validate", PolicyRESTValidate, http.MethodPost),
		MustNewRoute("*/api/validateMultiple", PolicyRESTValidateMultiple, http.MethodPost),
	}
}

// RouteTable resolves the rate limiting policy of an HTTP request.
// Routes are tried in order, the first matching one wins.
// It's immutable and safe for concurrent use.
type RouteTable struct {
	routes []Route
}

// NewRouteTable creates a new RouteTable. Routes should be created by NewRoute or MustNewRoute.
func NewRouteTable(routes []Route) *RouteTable {
	return &RouteTable{routes: slices.Clone(routes)}
}

// Lookup returns the policy of the first route matching the HTTP request.
func (t *RouteTable) Lookup(r *http.Request) (Policy, bool) {
	cleanPath := CleanURLPath(r.URL.Path)
	for i := range t.routes {
		if t.routes[i].matches(cleanPath, r.Method) {
			return t.routes[i].Policy, true
		}
	}
	return 0, false
}

var knownHTTPMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodConnect,
	http.MethodOptions,
	http.MethodTrace,
}

// CleanURLPath returns the shortest equivalent of the URL path, so "/domain1//api/./validate" and
// "/domain1/api/validate" are limited by the same route. The result always starts with "/" and
// has no trailing slash (except the root).
func CleanURLPath(urlPath string) string {
	return path.Clean("/" + urlPath)
}
