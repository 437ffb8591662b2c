package bootstrap

import (
	"fmt"
	"net/url"
	"sync"
)

// NavigationContext is the incoming navigation the login screen was opened with.
type NavigationContext interface {
	// Param returns a query parameter and whether it was present.
	Param(name string) (string, bool)

	// StripParam removes a parameter so a reload does not see it again.
	StripParam(name string)
}

// QueryNavigation implements NavigationContext over a URL, such as the
// finsight://login?sso_error=... link the identity-provider callback opens.
type QueryNavigation struct {
	mu  sync.Mutex
	url *url.URL
}

// ParseNavigation parses raw into a QueryNavigation. An empty string yields
// an empty navigation.
func ParseNavigation(raw string) (*QueryNavigation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid navigation URL %q: %w", raw, err)
	}
	return &QueryNavigation{url: u}, nil
}

// Param implements NavigationContext.
func (n *QueryNavigation) Param(name string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	values := n.url.Query()
	if !values.Has(name) {
		return "", false
	}
	return values.Get(name), true
}

// StripParam implements NavigationContext.
func (n *QueryNavigation) StripParam(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	values := n.url.Query()
	values.Del(name)
	n.url.RawQuery = values.Encode()
}

// String returns the current, possibly rewritten, URL.
func (n *QueryNavigation) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url.String()
}
