package parlayx

import (
	"encoding/xml"
	"fmt"

	"github.com/vergetel/ussdbridge/pkg/soap"
)

// NotificationNS is the namespace of carrier-pushed USSD notifications.
const NotificationNS = "http://www.csapi.org/schema/parlayx/ussd/notification/v1_0/local"

// USSDMessage is a parsed notifyUssdReception push. Fields are immutable
// once parsed; MsIsdn is normalized to a bare MSISDN.
type USSDMessage struct {
	MsgType     string
	SenderCB    string
	ReceiveCB   string
	UssdOpType  string
	MsIsdn      string
	ServiceCode string
	CodeScheme  string
	UssdString  string
}

// Raw protocol discriminators for MsgType.
const (
	MsgTypeNew    = "0"
	MsgTypeResume = "1"
	MsgTypeClose  = "2"
)

// USSD operation types used on the outbound path.
const (
	OpTypeRequest = "1"
	OpTypeRelease = "3"
)

// ParseUSSDMessage decodes a notifyUssdReception body element, matching
// fields by local name after namespace resolution.
func ParseUSSDMessage(body []byte) (USSDMessage, error) {
	var raw struct {
		MsgType     string `xml:"msgType"`
		SenderCB    string `xml:"senderCB"`
		ReceiveCB   string `xml:"receiveCB"`
		UssdOpType  string `xml:"ussdOpType"`
		MsIsdn      string `xml:"msIsdn"`
		ServiceCode string `xml:"serviceCode"`
		CodeScheme  string `xml:"codeScheme"`
		UssdString  string `xml:"ussdString"`
	}
	if err := soap.DecodeFirst(body, &raw); err != nil {
		return USSDMessage{}, fmt.Errorf("parsing ussd notification: %w", err)
	}
	return USSDMessage{
		MsgType:     raw.MsgType,
		SenderCB:    raw.SenderCB,
		ReceiveCB:   raw.ReceiveCB,
		UssdOpType:  raw.UssdOpType,
		MsIsdn:      NormalizeAddress(raw.MsIsdn),
		ServiceCode: raw.ServiceCode,
		CodeScheme:  raw.CodeScheme,
		UssdString:  raw.UssdString,
	}, nil
}

type notifyUssdReceptionResponse struct {
	XMLName xml.Name `xml:"loc:notifyUssdReceptionResponse"`
	NS      string   `xml:"xmlns:loc,attr"`
	Result  string   `xml:"loc:result"`
}

// ReceptionSuccessResponse renders the fixed result=0 body acknowledging
// an accepted notification.
func ReceptionSuccessResponse() ([]byte, error) {
	out, err := xml.Marshal(notifyUssdReceptionResponse{NS: NotificationNS, Result: "0"})
	if err != nil {
		return nil, fmt.Errorf("marshalling reception response: %w", err)
	}
	return out, nil
}
