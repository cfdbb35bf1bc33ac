package upnp

import (
	"context"
	"fmt"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-portmap/portmap/internal/netutil"
	"github.com/go-portmap/portmap/internal/plog"
	"github.com/go-portmap/portmap/transport"
)

var log = plog.New("upnp")

// AddResult is the outcome of an Add call. UPnP never echoes back a
// different external port than requested, so ExternalPort here always
// equals the port the caller asked for on success.
type AddResult struct {
	Success      bool
	ExternalPort uint16
	ControlURL   string
	InternalIP   string
	ErrInfo      string
	// Conflict is true when the gateway rejected the request with
	// ConflictInMappingEntry: the service exists and answered, but this
	// specific mapping could not be created. A probe treats this as
	// evidence of UPnP support even though Success is false.
	Conflict bool
}

// DeleteResult is the outcome of a Delete call.
type DeleteResult struct {
	Success bool
	ErrInfo string
}

// Engine discovers WANIPConnection gateways over SSDP and drives
// AddPortMapping/DeletePortMapping over SOAP.
type Engine struct {
	transport   transport.Transport
	ssdpTimeout time.Duration
	httpTimeout time.Duration
	cache       *lru.Cache[string, string]
}

// New returns a UPnP engine bound to transport, using ssdpTimeout as the
// M-SEARCH collection window and httpTimeout for every HTTP request
// (device description fetch and SOAP invocation alike).
func New(t transport.Transport, ssdpTimeout, httpTimeout time.Duration) *Engine {
	return &Engine{
		transport:   t,
		ssdpTimeout: ssdpTimeout,
		httpTimeout: httpTimeout,
		cache:       newControlURLCache(),
	}
}

// Add discovers a WANIPConnection gateway (or reuses knownControlURL when
// it is non-empty) and requests a UDP mapping for
// (internalPort -> externalPort). description and leaseSeconds are passed
// through to AddPortMapping verbatim.
func (e *Engine) Add(ctx context.Context, localIPs []string, knownControlURL string, internalPort, externalPort uint16, description string, leaseSeconds uint32) AddResult {
	controlURL := knownControlURL
	if controlURL == "" {
		var err error
		controlURL, err = e.discoverControlURL(ctx, localIPs)
		if err != nil {
			return AddResult{ErrInfo: err.Error()}
		}
	}

	parsed, err := url.Parse(controlURL)
	if err != nil {
		return AddResult{ErrInfo: fmt.Sprintf("upnp: parse controlURL %q: %s", controlURL, err), ControlURL: controlURL}
	}

	internalIP, ok := netutil.LongestPrefixMatch(localIPs, parsed.Hostname())
	if !ok {
		return AddResult{ErrInfo: "upnp: no local address plausibly reaches gateway", ControlURL: controlURL}
	}

	envelope := addPortMappingEnvelope(internalIP, internalPort, externalPort, description, leaseSeconds)
	status, body, err := e.transport.HTTPPost(ctx, controlURL, soapHeaders("AddPortMapping"), envelope, e.httpTimeout)
	if err != nil {
		return AddResult{ErrInfo: err.Error(), ControlURL: controlURL}
	}

	if status == 200 {
		return AddResult{
			Success:      true,
			ExternalPort: externalPort,
			ControlURL:   controlURL,
			InternalIP:   internalIP,
		}
	}

	fault := extractSOAPFault(string(body))
	log.Debug("upnp add rejected", "controlURL", controlURL, "status", status, "fault", fault)
	return AddResult{
		ErrInfo:    fmt.Sprintf("upnp: AddPortMapping http %d: %s", status, fault),
		ControlURL: controlURL,
		Conflict:   fault == conflictInMappingEntry,
	}
}

// Delete requests removal of the UDP mapping for externalPort via
// controlURL, which the caller obtains from the Mapping created by Add
// (spec.md §4.8: delete never re-runs discovery).
func (e *Engine) Delete(ctx context.Context, controlURL string, externalPort uint16) DeleteResult {
	if controlURL == "" {
		return DeleteResult{ErrInfo: "upnp: delete requires a known controlURL"}
	}

	envelope := deletePortMappingEnvelope(externalPort)
	status, body, err := e.transport.HTTPPost(ctx, controlURL, soapHeaders("DeletePortMapping"), envelope, e.httpTimeout)
	if err != nil {
		return DeleteResult{ErrInfo: err.Error()}
	}
	if status == 200 {
		return DeleteResult{Success: true}
	}
	return DeleteResult{ErrInfo: fmt.Sprintf("upnp: DeletePortMapping http %d: %s", status, extractSOAPFault(string(body)))}
}

// Probe is a lightweight existence check: it runs discovery and, if a
// controlURL is found, returns it without attempting any mapping.
// ProbeProtocolSupport caches the controlURL it returns, but decides
// support from a following Add attempt: a success or a Conflict result
// counts as support, since both mean the WANIPConnection service
// answered. Discovery alone does not.
func (e *Engine) Probe(ctx context.Context, localIPs []string) (controlURL string, ok bool) {
	controlURL, err := e.discoverControlURL(ctx, localIPs)
	if err != nil {
		return "", false
	}
	return controlURL, true
}

func (e *Engine) discoverControlURL(ctx context.Context, localIPs []string) (string, error) {
	locations, err := discoverLocations(ctx, e.transport, e.ssdpTimeout)
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, loc := range locations {
		controlURL, err := resolveControlURL(ctx, e.transport, e.cache, loc, e.httpTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		return controlURL, nil
	}
	if lastErr == nil {
		lastErr = errNoWANIPConnection
	}
	return "", lastErr
}
