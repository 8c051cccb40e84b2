// Package soap implements the subset of SOAP 1.1 needed to interoperate
// with carrier-side ParlayX services: envelope construction and parsing,
// and structured fault documents. It deliberately omits WS-* extensions.
package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// EnvelopeNS is the SOAP 1.1 envelope namespace, conventionally bound to
// the "soapenv" prefix.
const EnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// Well-known fault codes. The prefix resolves against the envelope
// namespace declared on the document root.
const (
	FaultCodeClient = "soapenv:Client"
	FaultCodeServer = "soapenv:Server"
)

var (
	// ErrMalformed wraps XML syntax errors in inbound documents.
	ErrMalformed = errors.New("malformed envelope")
	// ErrNoBody indicates a well-formed document with no SOAP Body.
	ErrNoBody = errors.New("no body element in envelope")
)

type container struct {
	Inner []byte `xml:",innerxml"`
}

type envelope struct {
	XMLName xml.Name   `xml:"soapenv:Envelope"`
	NS      string     `xml:"xmlns:soapenv,attr"`
	Header  *container `xml:"soapenv:Header"`
	Body    container  `xml:"soapenv:Body"`
}

// Envelope wraps a marshalled body, and optionally a marshalled header,
// in a SOAP envelope. A nil header omits the Header element entirely.
func Envelope(body, header []byte) ([]byte, error) {
	env := envelope{NS: EnvelopeNS, Body: container{Inner: body}}
	if header != nil {
		env.Header = &container{Inner: header}
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

type envelopeDoc struct {
	XMLName xml.Name
	Header  *container `xml:"Header"`
	Body    *container `xml:"Body"`
}

// Unwrap splits a SOAP envelope document into its raw body and header
// payloads. The header is nil when the envelope carries none. Documents
// that are not XML fail with ErrMalformed; well-formed documents that are
// not SOAP envelopes fail with ErrNoBody.
func Unwrap(doc []byte) (body, header []byte, err error) {
	var env envelopeDoc
	if err := xml.Unmarshal(doc, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.XMLName.Local != "Envelope" || env.XMLName.Space != EnvelopeNS || env.Body == nil {
		return nil, nil, ErrNoBody
	}
	if env.Header != nil {
		header = env.Header.Inner
	}
	return env.Body.Inner, header, nil
}

// Fault is a SOAP fault: a classification code, a human-readable message
// and an optional raw detail block. The detail schema is owned by the
// caller, not by this package.
type Fault struct {
	Code    string
	Message string
	Detail  []byte
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Message)
}

type faultElement struct {
	XMLName xml.Name   `xml:"soapenv:Fault"`
	Code    string     `xml:"faultcode"`
	Message string     `xml:"faultstring"`
	Detail  *container `xml:"detail"`
}

// FaultEnvelope renders a fault as a complete response envelope.
func FaultEnvelope(f *Fault) ([]byte, error) {
	fe := faultElement{Code: f.Code, Message: f.Message}
	if f.Detail != nil {
		fe.Detail = &container{Inner: f.Detail}
	}
	body, err := xml.Marshal(fe)
	if err != nil {
		return nil, fmt.Errorf("marshalling fault: %w", err)
	}
	return Envelope(body, nil)
}

type faultParse struct {
	Code    string     `xml:"faultcode"`
	Message string     `xml:"faultstring"`
	Detail  *container `xml:"detail"`
}

// ParseFault scans an unwrapped body for a Fault element, matched by
// local name. It returns nil when the body carries no fault.
func ParseFault(body []byte) *Fault {
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err != nil {
			return nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "Fault" {
			if err := d.Skip(); err != nil {
				return nil
			}
			continue
		}
		var fp faultParse
		if err := d.DecodeElement(&fp, &start); err != nil {
			return nil
		}
		f := &Fault{Code: fp.Code, Message: fp.Message}
		if fp.Detail != nil {
			f.Detail = fp.Detail.Inner
		}
		return f
	}
}

// FirstElement reports the name of the first child element in an
// unwrapped body. Operation dispatch keys on the local part.
func FirstElement(body []byte) (xml.Name, bool) {
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err != nil {
			return xml.Name{}, false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name, true
		}
	}
}

// FindText returns the character data of the first descendant element
// with the given local name, or the empty string when no such element
// exists anywhere in the payload.
func FindText(payload []byte, local string) string {
	d := xml.NewDecoder(bytes.NewReader(payload))
	depthMatch := -1
	depth := 0
	var text bytes.Buffer
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depthMatch < 0 && t.Name.Local == local {
				depthMatch = depth
				text.Reset()
			}
		case xml.CharData:
			if depthMatch == depth && depthMatch > 0 {
				text.Write(t)
			}
		case xml.EndElement:
			if depthMatch == depth && depthMatch > 0 {
				return text.String()
			}
			depth--
		}
	}
}

// DecodeFirst unmarshals the first child element of an unwrapped body or
// header into v, matching fields by local name.
func DecodeFirst(payload []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return ErrNoBody
			}
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return d.DecodeElement(v, &start)
		}
	}
}
