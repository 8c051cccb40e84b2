package parlayx

import "strings"

// FormatAddress renders a subscriber address in the tel: URI form the
// carrier expects in outbound msIsdn fields.
func FormatAddress(msisdn string) string {
	return "tel:" + strings.TrimPrefix(msisdn, "+")
}

// NormalizeAddress reduces a carrier-supplied address to a bare MSISDN:
// the tel: scheme and any leading + are stripped.
func NormalizeAddress(addr string) string {
	addr = strings.TrimPrefix(addr, "tel:")
	return strings.TrimPrefix(addr, "+")
}
