package upnp

import (
	"fmt"
	"strings"
)

const wanIPConnectionNS = "urn:schemas-upnp-org:service:WANIPConnection:1"

func addPortMappingEnvelope(internalClient string, internalPort, externalPort uint16, description string, leaseSeconds uint32) []byte {
	body := fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<u:AddPortMapping xmlns:u="%s">
<NewRemoteHost></NewRemoteHost>
<NewExternalPort>%d</NewExternalPort>
<NewProtocol>UDP</NewProtocol>
<NewInternalPort>%d</NewInternalPort>
<NewInternalClient>%s</NewInternalClient>
<NewEnabled>1</NewEnabled>
<NewPortMappingDescription>%s</NewPortMappingDescription>
<NewLeaseDuration>%d</NewLeaseDuration>
</u:AddPortMapping>
</s:Body>
</s:Envelope>`, wanIPConnectionNS, externalPort, internalPort, internalClient, description, leaseSeconds)
	return []byte(body)
}

func deletePortMappingEnvelope(externalPort uint16) []byte {
	body := fmt.Sprintf(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body>
<u:DeletePortMapping xmlns:u="%s">
<NewRemoteHost></NewRemoteHost>
<NewExternalPort>%d</NewExternalPort>
<NewProtocol>UDP</NewProtocol>
</u:DeletePortMapping>
</s:Body>
</s:Envelope>`, wanIPConnectionNS, externalPort)
	return []byte(body)
}

func soapHeaders(action string) map[string]string {
	return map[string]string{
		"Content-Type": `text/xml; charset="utf-8"`,
		"SOAPAction":   fmt.Sprintf(`"%s#%s"`, wanIPConnectionNS, action),
	}
}

// extractSOAPFault pulls <errorDescription> out of a SOAP fault body. Real
// IGD firmware varies in namespace prefixes on the fault element itself,
// but errorDescription is consistently unprefixed, so a substring scan is
// both simpler and more robust than a strict decoder here too.
func extractSOAPFault(body string) string {
	const open = "<errorDescription>"
	const close = "</errorDescription>"
	start := strings.Index(body, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(body[start:], close)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(body[start : start+end])
}

// conflictInMappingEntry is the UPnP error description a gateway returns
// when an AddPortMapping request collides with an existing entry. Per
// spec.md §4.7/S3, seeing this specific fault during a probe is itself
// proof the WANIPConnection service exists and is reachable, even though
// the requested mapping was rejected.
const conflictInMappingEntry = "ConflictInMappingEntry"
