// Package parlayx implements the carrier-facing side of the bridge: the
// authenticated SOAP client for the ParlayX USSD services, the fault
// taxonomy for carrier rejections, and the retry classification applied
// to outbound failures.
package parlayx

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vergetel/ussdbridge/pkg/soap"
)

// Namespaces of the two remote services this client calls.
const (
	SendNS                = "http://www.csapi.org/schema/parlayx/ussd/send/v1_0/local"
	NotificationManagerNS = "http://www.csapi.org/schema/osg/ussd/notification_manager/v1_0/local"
)

// Config carries the provisioned carrier parameters for a Client.
type Config struct {
	// ServiceID, SPID and SPPassword are the provisioned service
	// provider credentials.
	ServiceID  string
	SPID       string
	SPPassword string
	// ShortCode is the service activation number notifications are
	// registered for.
	ShortCode string
	// Endpoint is the local notification URI advertised to the carrier.
	Endpoint string
	// SendURI and NotificationURI are the two remote SOAP endpoints.
	SendURI         string
	NotificationURI string
	// Timeout bounds the wait for each carrier HTTP response.
	Timeout time.Duration
}

// Client issues carrier-bound ParlayX calls. Every call builds a fresh
// authenticated header from the injected clock and performs exactly one
// HTTP request; no session state is shared across calls.
type Client struct {
	cfg Config
	hc  *http.Client
	now func() time.Time

	// correlator identifies this bridge instance's notification
	// subscription. Generated once at construction, stable for the
	// client's lifetime.
	correlator string
}

// NewClient builds a Client with a real clock and a fresh correlator.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		hc:         &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		correlator: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// Correlator reports the subscription correlator for this instance.
func (c *Client) Correlator() string {
	return c.correlator
}

func (c *Client) header(oa, linkid string) RequestHeader {
	return BuildHeader(c.cfg.ServiceID, c.cfg.SPID, c.cfg.SPPassword, c.now(), oa, linkid)
}

// call performs one SOAP request and returns the unwrapped response
// body. Carrier faults come back as typed errors; transport failures
// pass through untouched for the classifier to leave unclassified.
func (c *Client) call(ctx context.Context, uri string, body any, header RequestHeader) ([]byte, error) {
	bodyXML, err := xml.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request body: %w", err)
	}
	headerXML, err := header.Marshal()
	if err != nil {
		return nil, err
	}
	doc, err := soap.Envelope(bodyXML, headerXML)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("building carrier request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respDoc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading carrier response: %w", err)
	}

	respBody, _, err := soap.Unwrap(respDoc)
	if err != nil {
		return nil, fmt.Errorf("carrier returned status %d: %w", resp.StatusCode, err)
	}
	if f := soap.ParseFault(respBody); f != nil {
		return nil, typedFault(f)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier returned status %d without fault", resp.StatusCode)
	}
	return respBody, nil
}

// SendParams are the arguments of one sendUssd call. The raw protocol
// discriminators (MsgType, UssdOpType) are carried as opaque strings the
// way the carrier delivered them.
type SendParams struct {
	ToAddr      string
	Content     string
	SenderCB    string
	MsgType     string
	UssdOpType  string
	ServiceCode string
	CodeScheme  string
	Linkid      string
}

type sendUssd struct {
	XMLName     xml.Name `xml:"req:sendUssd"`
	NS          string   `xml:"xmlns:req,attr"`
	MsgType     string   `xml:"req:msgType"`
	SenderCB    string   `xml:"req:senderCB"`
	ReceiveCB   string   `xml:"req:receiveCB"`
	UssdOpType  string   `xml:"req:ussdOpType"`
	MsIsdn      string   `xml:"req:msIsdn"`
	ServiceCode string   `xml:"req:serviceCode"`
	CodeScheme  string   `xml:"req:codeScheme"`
	UssdString  string   `xml:"req:ussdString"`
}

// SendUssd delivers a message into the subscriber's USSD session and
// returns the carrier's request identifier, or "" when the carrier
// accepted the call without assigning one.
func (c *Client) SendUssd(ctx context.Context, p SendParams) (string, error) {
	slog.InfoContext(ctx, "Sending USSD via carrier",
		slog.String("to", p.ToAddr), slog.String("msg_type", p.MsgType))
	body := sendUssd{
		NS:          SendNS,
		MsgType:     p.MsgType,
		SenderCB:    p.SenderCB,
		ReceiveCB:   p.SenderCB,
		UssdOpType:  p.UssdOpType,
		MsIsdn:      FormatAddress(p.ToAddr),
		ServiceCode: p.ServiceCode,
		CodeScheme:  p.CodeScheme,
		UssdString:  p.Content,
	}
	respBody, err := c.call(ctx, c.cfg.SendURI, body, c.header(p.ToAddr, p.Linkid))
	if err != nil {
		return "", err
	}
	return soap.FindText(respBody, "result"), nil
}

type receiptRequest struct {
	Endpoint      string `xml:"endpoint"`
	InterfaceName string `xml:"interfaceName"`
	Correlator    string `xml:"correlator"`
}

type sendUssdAbort struct {
	XMLName   xml.Name       `xml:"req:sendUssdAbort"`
	NS        string         `xml:"xmlns:req,attr"`
	Addresses string         `xml:"req:addresses"`
	Message   string         `xml:"req:message"`
	Receipt   receiptRequest `xml:"req:receiptRequest"`
}

// SendUssdAbort aborts an in-progress send identified by messageID.
func (c *Client) SendUssdAbort(ctx context.Context, toAddr, content, messageID, linkid string) (string, error) {
	slog.InfoContext(ctx, "Aborting USSD send via carrier",
		slog.String("to", toAddr), slog.String("msg_id", messageID))
	body := sendUssdAbort{
		NS:        SendNS,
		Addresses: FormatAddress(toAddr),
		Message:   content,
		Receipt: receiptRequest{
			Endpoint:      c.cfg.Endpoint,
			InterfaceName: "USSDNotification",
			Correlator:    messageID,
		},
	}
	respBody, err := c.call(ctx, c.cfg.SendURI, body, c.header(toAddr, linkid))
	if err != nil {
		return "", err
	}
	return soap.FindText(respBody, "result"), nil
}

type startUSSDNotification struct {
	XMLName          xml.Name       `xml:"nm:startUSSDNotification"`
	NS               string         `xml:"xmlns:nm,attr"`
	Reference        receiptRequest `xml:"nm:reference"`
	ActivationNumber string         `xml:"nm:ussdServiceActivationNumber"`
}

// StartNotification registers this bridge as the delivery target for the
// configured service activation number. Each invocation is an
// independent registration call; no deduplication is attempted.
func (c *Client) StartNotification(ctx context.Context) error {
	slog.InfoContext(ctx, "Registering USSD notification delivery",
		slog.String("short_code", c.cfg.ShortCode), slog.String("correlator", c.correlator))
	body := startUSSDNotification{
		NS: NotificationManagerNS,
		Reference: receiptRequest{
			Endpoint:      c.cfg.Endpoint,
			InterfaceName: "notifyUssdReception",
			Correlator:    c.correlator,
		},
		ActivationNumber: c.cfg.ShortCode,
	}
	_, err := c.call(ctx, c.cfg.NotificationURI, body, c.header("", ""))
	return err
}

type stopUSSDNotification struct {
	XMLName    xml.Name `xml:"nm:stopUSSDNotification"`
	NS         string   `xml:"xmlns:nm,attr"`
	Correlator string   `xml:"correlator"`
}

// StopNotification deregisters this bridge's notification subscription.
func (c *Client) StopNotification(ctx context.Context) error {
	slog.InfoContext(ctx, "Deregistering USSD notification delivery",
		slog.String("correlator", c.correlator))
	body := stopUSSDNotification{NS: NotificationManagerNS, Correlator: c.correlator}
	_, err := c.call(ctx, c.cfg.NotificationURI, body, c.header("", ""))
	return err
}
