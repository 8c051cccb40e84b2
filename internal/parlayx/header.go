package parlayx

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"time"
)

// HeaderNS is the namespace of the authenticated RequestSOAPHeader
// carried on every outbound call.
const HeaderNS = "http://www.huawei.com.cn/schema/common/v2_1"

// timestampLayout is the carrier-specified fixed-width date-time form.
// The exact string is both transmitted and hashed, so it must never
// drift from this layout.
const timestampLayout = "20060102150405"

// FormatTimestamp renders t in the carrier's numeric date-time form.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// SPPassword computes the hashed credential transmitted in spPassword:
// the hex md5 digest of the provider id, password and formatted
// timestamp concatenated. The hash is fixed by the carrier protocol.
func SPPassword(spID, password, timestamp string) string {
	sum := md5.Sum([]byte(spID + password + timestamp))
	return hex.EncodeToString(sum[:])
}

// RequestHeader is the authenticated header for an outbound call. OA and
// Linkid are omitted from the document entirely when empty; the carrier
// treats presence as meaningful.
type RequestHeader struct {
	XMLName   xml.Name `xml:"head:RequestSOAPHeader"`
	NS        string   `xml:"xmlns:head,attr"`
	SPID      string   `xml:"head:spId"`
	Password  string   `xml:"head:spPassword"`
	ServiceID string   `xml:"head:serviceId"`
	Timestamp string   `xml:"head:timeStamp"`
	OA        string   `xml:"head:OA,omitempty"`
	Linkid    string   `xml:"head:linkid,omitempty"`
}

// BuildHeader assembles a RequestHeader for one call at the given
// instant. The credential is recomputed every time; it is never valid to
// cache it across calls because the timestamp participates in the hash.
func BuildHeader(serviceID, spID, password string, now time.Time, oa, linkid string) RequestHeader {
	ts := FormatTimestamp(now)
	return RequestHeader{
		NS:        HeaderNS,
		SPID:      spID,
		Password:  SPPassword(spID, password, ts),
		ServiceID: serviceID,
		Timestamp: ts,
		OA:        oa,
		Linkid:    linkid,
	}
}

// Marshal renders the header ready for envelope inclusion.
func (h RequestHeader) Marshal() ([]byte, error) {
	out, err := xml.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshalling request header: %w", err)
	}
	return out, nil
}
