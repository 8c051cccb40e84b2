package parlayx

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/vergetel/ussdbridge/pkg/soap"
)

// CommonNS is the namespace of the ParlayX common fault detail types.
const CommonNS = "http://www.csapi.org/schema/parlayx/common/v2_1"

// FaultDetail is the structured detail block of a domain-specific fault.
type FaultDetail struct {
	MessageID string
	Text      string
	Variables []string
}

// ServiceException is a carrier service-level rejection. Retrying the
// same request will not succeed.
type ServiceException struct {
	Fault  *soap.Fault
	Detail FaultDetail
}

func (e *ServiceException) Error() string {
	return fmt.Sprintf("service exception %s: %s", e.Detail.MessageID, e.Detail.Text)
}

// PolicyException is a carrier policy-level rejection. Retrying the same
// request will not succeed.
type PolicyException struct {
	Fault  *soap.Fault
	Detail FaultDetail
}

func (e *PolicyException) Error() string {
	return fmt.Sprintf("policy exception %s: %s", e.Detail.MessageID, e.Detail.Text)
}

type detailParse struct {
	MessageID string   `xml:"messageId"`
	Text      string   `xml:"text"`
	Variables []string `xml:"variables"`
}

// typedFault inspects a parsed fault's detail block and promotes known
// domain fault classes to their typed representations. Unknown faults
// are returned as-is.
func typedFault(f *soap.Fault) error {
	if f.Detail == nil {
		return f
	}
	d := xml.NewDecoder(bytes.NewReader(f.Detail))
	for {
		tok, err := d.Token()
		if err != nil {
			return f
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		var dp detailParse
		switch start.Name.Local {
		case "ServiceExceptionDetail":
			if err := d.DecodeElement(&dp, &start); err != nil {
				return f
			}
			return &ServiceException{Fault: f, Detail: FaultDetail(dp)}
		case "PolicyExceptionDetail":
			if err := d.DecodeElement(&dp, &start); err != nil {
				return f
			}
			return &PolicyException{Fault: f, Detail: FaultDetail(dp)}
		default:
			if err := d.Skip(); err != nil {
				return f
			}
		}
	}
}

// Disposition is the retry classification attached to an outbound
// failure.
type Disposition int

const (
	// Unclassified failures are not protocol faults; the caller applies
	// its own retry policy.
	Unclassified Disposition = iota
	// Temporary failures may be retried with the same input.
	Temporary
	// Permanent failures must not be retried with the same input.
	Permanent
)

func (d Disposition) String() string {
	switch d {
	case Temporary:
		return "temporary"
	case Permanent:
		return "permanent"
	default:
		return "unclassified"
	}
}

// Classify maps an outbound call failure to its retry disposition.
//
// Domain rejections are permanent: the carrier has explicitly refused.
// Unrecognized server-class faults get the benefit of the doubt and are
// treated as transient. Any other recognized fault is permanent.
// Timeouts count as transient server-side trouble; all remaining
// transport-level failures pass through unclassified.
func Classify(err error) Disposition {
	var se *ServiceException
	var pe *PolicyException
	if errors.As(err, &se) || errors.As(err, &pe) {
		return Permanent
	}
	var f *soap.Fault
	if errors.As(err, &f) {
		if strings.HasSuffix(f.Code, "Server") {
			return Temporary
		}
		return Permanent
	}
	if isTimeout(err) {
		return Temporary
	}
	return Unclassified
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
