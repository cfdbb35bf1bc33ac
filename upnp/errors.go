package upnp

import "errors"

var (
	errNoSSDPReply       = errors.New("upnp: no SSDP reply received")
	errNoWANIPConnection = errors.New("upnp: device description does not advertise WANIPConnection")
	errNoControlURL      = errors.New("upnp: WANIPConnection service has no controlURL")
)
