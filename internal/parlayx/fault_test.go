package parlayx

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergetel/ussdbridge/pkg/soap"
)

func serviceDetail() []byte {
	return []byte(`<common:ServiceExceptionDetail xmlns:common="` + CommonNS + `">` +
		`<messageId>a</messageId><text>b</text>` +
		`<variables>c</variables><variables>d</variables>` +
		`</common:ServiceExceptionDetail>`)
}

func policyDetail() []byte {
	return []byte(`<common:PolicyExceptionDetail xmlns:common="` + CommonNS + `">` +
		`<messageId>a</messageId><text>b</text>` +
		`<variables>c</variables><variables>d</variables>` +
		`</common:PolicyExceptionDetail>`)
}

func TestTypedFaultService(t *testing.T) {
	f := &soap.Fault{Code: "soapenv:Server", Message: "Whoops", Detail: serviceDetail()}
	err := typedFault(f)

	var se *ServiceException
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Detail.MessageID)
	assert.Equal(t, "b", se.Detail.Text)
	assert.Equal(t, []string{"c", "d"}, se.Detail.Variables)
}

func TestTypedFaultPolicy(t *testing.T) {
	f := &soap.Fault{Code: "soapenv:Server", Message: "Whoops", Detail: policyDetail()}
	err := typedFault(f)

	var pe *PolicyException
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, []string{"c", "d"}, pe.Detail.Variables)
}

func TestTypedFaultUnknownDetail(t *testing.T) {
	f := &soap.Fault{Code: "soapenv:Client", Message: "bad", Detail: []byte(`<other/>`)}
	err := typedFault(f)
	var gotFault *soap.Fault
	require.ErrorAs(t, err, &gotFault)
	assert.Equal(t, f, gotFault)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Disposition
	}{
		{
			name: "service rejection is permanent",
			err:  typedFault(&soap.Fault{Code: "soapenv:Server", Message: "no", Detail: serviceDetail()}),
			want: Permanent,
		},
		{
			name: "policy rejection is permanent",
			err:  typedFault(&soap.Fault{Code: "soapenv:Server", Message: "no", Detail: policyDetail()}),
			want: Permanent,
		},
		{
			name: "unknown server-class fault is temporary",
			err:  &soap.Fault{Code: "soapenv:Server", Message: "overloaded"},
			want: Temporary,
		},
		{
			name: "unknown client-class fault is permanent",
			err:  &soap.Fault{Code: "soapenv:Client", Message: "bad request"},
			want: Permanent,
		},
		{
			name: "wrapped fault classifies through",
			err:  fmt.Errorf("sending: %w", &soap.Fault{Code: "soapenv:Server", Message: "x"}),
			want: Temporary,
		},
		{
			name: "connection error passes through unclassified",
			err:  errors.New("connection refused"),
			want: Unclassified,
		},
		{
			name: "deadline exceeded is temporary",
			err:  context.DeadlineExceeded,
			want: Temporary,
		},
		{
			name: "network timeout is temporary",
			err:  timeoutErr{},
			want: Temporary,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
