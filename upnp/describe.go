package upnp

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-portmap/portmap/transport"
)

const controlURLCacheSize = 64

// newControlURLCache backs the (LOCATION -> controlURL) memoization
// described in spec.md §4.7: once a router's device description has been
// scraped successfully, later discoveries that find the same LOCATION skip
// the HTTP GET and string-scan entirely.
func newControlURLCache() *lru.Cache[string, string] {
	c, err := lru.New[string, string](controlURLCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// controlURLCacheSize never is.
		panic(err)
	}
	return c
}

// resolveControlURL fetches the device description at location and scans
// it for the WANIPConnection service's controlURL, caching the result
// keyed by location. The scan is deliberately not a real XML parse: field
// routers emit description documents with stray namespaces, inconsistent
// casing, and occasional malformed entities, so spec.md §4.7 calls for a
// defensive substring scan instead of a strict decoder.
func resolveControlURL(ctx context.Context, t transport.Transport, cache *lru.Cache[string, string], location string, httpTimeout time.Duration) (string, error) {
	if cached, ok := cache.Get(location); ok {
		return cached, nil
	}

	body, err := t.HTTPGet(ctx, location, httpTimeout)
	if err != nil {
		return "", fmt.Errorf("upnp: fetch device description %s: %w", location, err)
	}

	controlPath, err := scanControlURL(string(body))
	if err != nil {
		return "", fmt.Errorf("upnp: %s: %w", location, err)
	}

	resolved, err := resolveRelative(location, controlPath)
	if err != nil {
		return "", fmt.Errorf("upnp: resolve controlURL %q against %s: %w", controlPath, location, err)
	}

	cache.Add(location, resolved)
	return resolved, nil
}

// scanControlURL finds the WANIPConnection service block and extracts the
// first <controlURL> that follows it. A real device description lists
// several services (WANCommonInterfaceConfig, Layer3Forwarding, etc.); we
// anchor on the WANIPConnection marker first so we don't pick up an
// unrelated service's controlURL.
func scanControlURL(doc string) (string, error) {
	marker := strings.Index(doc, "WANIPConnection")
	if marker < 0 {
		return "", errNoWANIPConnection
	}

	rest := doc[marker:]
	open := strings.Index(rest, "<controlURL>")
	if open < 0 {
		return "", errNoControlURL
	}
	open += len("<controlURL>")
	close := strings.Index(rest[open:], "</controlURL>")
	if close < 0 {
		return "", errNoControlURL
	}

	return strings.TrimSpace(rest[open : open+close]), nil
}

// resolveRelative resolves a (possibly relative) controlURL against the
// scheme+host of the device description's own LOCATION, matching how
// routers commonly publish controlURL as an absolute path.
func resolveRelative(location, controlPath string) (string, error) {
	base, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(controlPath)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
