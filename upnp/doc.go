// Package upnp implements the UPnP IGD:WANIPConnection engine: SSDP
// M-SEARCH discovery, device-description fetch with a deliberately
// defensive string-scan for the service's controlURL (real router
// firmware is not reliably well-formed XML), and SOAP AddPortMapping /
// DeletePortMapping invocation.
package upnp
