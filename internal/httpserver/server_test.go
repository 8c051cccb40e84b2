package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergetel/ussdbridge/internal/config"
	"github.com/vergetel/ussdbridge/internal/parlayx"
	"github.com/vergetel/ussdbridge/internal/session"
	"github.com/vergetel/ussdbridge/pkg/soap"
)

type received struct {
	sessionID string
	linkid    string
	msg       parlayx.USSDMessage
}

func newTestServer(t *testing.T, receive ReceiveFunc) *httptest.Server {
	t.Helper()
	s := NewServer(config.HTTPConfig{NotificationPath: "/ussd"}, receive)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, doc string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/ussd", `text/xml; charset="utf-8"`, strings.NewReader(doc))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(buf)
}

func receptionRequest(msgType, senderCB, ussdString, msIsdn, serviceCode string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Header>
    <linkid>LINK-42</linkid>
  </soapenv:Header>
  <soapenv:Body>
    <loc:notifyUssdReception xmlns:loc="http://www.csapi.org/schema/parlayx/ussd/notification/v1_0/local">
      <loc:msgType>%s</loc:msgType>
      <loc:senderCB>%s</loc:senderCB>
      <loc:receiveCB>0</loc:receiveCB>
      <loc:ussdOpType>1</loc:ussdOpType>
      <loc:msIsdn>%s</loc:msIsdn>
      <loc:serviceCode>%s</loc:serviceCode>
      <loc:codeScheme>68</loc:codeScheme>
      <loc:ussdString>%s</loc:ussdString>
    </loc:notifyUssdReception>
  </soapenv:Body>
</soapenv:Envelope>`, msgType, senderCB, msIsdn, serviceCode, ussdString)
}

func TestNotifyUssdReception_NewSession(t *testing.T) {
	var got received
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		got = received{sessionID: sessionID, linkid: linkid, msg: msg}
		return nil
	})

	resp, body := post(t, ts, receptionRequest("0", "123456", "*909*100#", "27117654321", "909"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "notifyUssdReceptionResponse")
	assert.Equal(t, "0", soap.FindText([]byte(body), "result"))

	assert.Equal(t, "123456", got.sessionID)
	assert.Equal(t, "LINK-42", got.linkid)
	assert.Equal(t, parlayx.MsgTypeNew, got.msg.MsgType)
	assert.Equal(t, "27117654321", got.msg.MsIsdn)
	assert.Equal(t, "909", got.msg.ServiceCode)
	assert.Equal(t, "*909*100#", got.msg.UssdString)
}

func TestNotifyUssdReception_NormalizesMsisdn(t *testing.T) {
	var got received
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		got = received{sessionID: sessionID, linkid: linkid, msg: msg}
		return nil
	})

	resp, _ := post(t, ts, receptionRequest("1", "123456", "1", "tel:+27117654321", "909"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "27117654321", got.msg.MsIsdn)
}

func TestNotifyUssdReception_UnknownSession(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		return fmt.Errorf("resume for %q: %w", sessionID, session.ErrNotFound)
	})

	resp, body := post(t, ts, receptionRequest("1", "999999", "1", "27117654321", "909"))

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	f := soap.ParseFault([]byte(body))
	require.NotNil(t, f)
	assert.Equal(t, soap.FaultCodeClient, f.Code)
	assert.Contains(t, f.Message, "999999")
}

func TestNotifyUssdReception_ReceiveFailure(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		return fmt.Errorf("bus unavailable")
	})

	resp, body := post(t, ts, receptionRequest("1", "123456", "1", "27117654321", "909"))

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	f := soap.ParseFault([]byte(body))
	require.NotNil(t, f)
	assert.Equal(t, soap.FaultCodeServer, f.Code)
}

func TestNotification_UnknownOperation(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		t.Fatal("receive must not be called for unknown operations")
		return nil
	})

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body>
    <loc:notifySmsReception xmlns:loc="http://www.csapi.org/schema/parlayx/sms/notification/v2_2/local"/>
  </soapenv:Body>
</soapenv:Envelope>`
	resp, body := post(t, ts, doc)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	f := soap.ParseFault([]byte(body))
	require.NotNil(t, f)
	assert.Equal(t, soap.FaultCodeServer, f.Code)
	assert.Equal(t, "No handler for notifySmsReception", f.Message)
}

func TestNotification_EmptyBody(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		t.Fatal("receive must not be called for empty bodies")
		return nil
	})

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/">
  <soapenv:Body></soapenv:Body>
</soapenv:Envelope>`
	resp, body := post(t, ts, doc)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	f := soap.ParseFault([]byte(body))
	require.NotNil(t, f)
	assert.Equal(t, soap.FaultCodeClient, f.Code)
	assert.Equal(t, "No actionable items", f.Message)
}

func TestNotification_MalformedXML(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error {
		t.Fatal("receive must not be called for malformed documents")
		return nil
	})

	resp, body := post(t, ts, "this is not xml")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	f := soap.ParseFault([]byte(body))
	require.NotNil(t, f)
	assert.Equal(t, soap.FaultCodeClient, f.Code)
	assert.Equal(t, "Malformed SOAP request", f.Message)
}
