// Package httpserver exposes the carrier-facing notification endpoint:
// a SOAP POST handler that parses pushed USSD notifications, dispatches
// them by operation name and always answers with a syntactically valid
// envelope, success or fault.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vergetel/ussdbridge/internal/config"
	"github.com/vergetel/ussdbridge/internal/logging"
	"github.com/vergetel/ussdbridge/internal/parlayx"
	"github.com/vergetel/ussdbridge/internal/session"
	"github.com/vergetel/ussdbridge/pkg/soap"
)

const contentTypeXML = `text/xml; charset="utf-8"`

// ReceiveFunc consumes one parsed notification. A session.ErrNotFound
// return rejects the request as a client defect; any other error
// becomes a server-class fault.
type ReceiveFunc func(ctx context.Context, sessionID, linkid string, msg parlayx.USSDMessage) error

// OperationHandler processes one dispatched operation and returns the
// success response body element.
type OperationHandler func(ctx context.Context, body, header []byte) ([]byte, error)

// Server is the inbound notification HTTP server.
type Server struct {
	cfg        config.HTTPConfig
	receive    ReceiveFunc
	handlers   map[string]OperationHandler
	httpServer *http.Server
	stopOnce   sync.Once
}

// NewServer creates a notification server delivering parsed messages to
// receive. Dispatch is an explicit operation registry; there is no
// SOAPAction header in this dialect, so the body's root element name is
// the only discriminator.
func NewServer(cfg config.HTTPConfig, receive ReceiveFunc) *Server {
	if receive == nil {
		panic("receive func cannot be nil for notification server")
	}
	s := &Server{cfg: cfg, receive: receive}
	s.handlers = map[string]OperationHandler{
		"notifyUssdReception": s.handleNotifyUssdReception,
	}
	return s
}

// ListenAndServe starts the HTTP server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer != nil {
		return errors.New("notification server already started")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.cfg.NotificationPath, s.handleNotification)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	slog.Info("Starting USSD notification server",
		slog.String("address", s.cfg.Addr), slog.String("path", s.cfg.NotificationPath))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Notification server ListenAndServe error", slog.Any("error", err))
		return err
	}
	slog.Info("Notification server stopped.")
	return nil
}

// Handler returns the request handler without binding a listener.
func (s *Server) Handler() http.HandlerFunc {
	return s.handleNotification
}

// handleNotification is the explicit parse → dispatch → respond
// pipeline; every stage returns a value or a typed error, and this
// single adapter converts the outcome into an HTTP response.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := io.ReadAll(r.Body)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read notification request", slog.Any("error", err))
		s.writeFault(ctx, w, http.StatusInternalServerError,
			&soap.Fault{Code: soap.FaultCodeClient, Message: "Malformed SOAP request"})
		return
	}

	body, header, err := soap.Unwrap(doc)
	if err != nil {
		slog.WarnContext(ctx, "Rejecting unparsable notification", slog.Any("error", err))
		s.writeFault(ctx, w, http.StatusInternalServerError,
			&soap.Fault{Code: soap.FaultCodeClient, Message: "Malformed SOAP request"})
		return
	}

	name, ok := soap.FirstElement(body)
	if !ok {
		s.writeFault(ctx, w, http.StatusInternalServerError,
			&soap.Fault{Code: soap.FaultCodeClient, Message: "No actionable items"})
		return
	}
	ctx = logging.ContextWithOperation(ctx, name.Local)

	handler, ok := s.handlers[name.Local]
	if !ok {
		slog.WarnContext(ctx, "No handler for notification operation")
		s.writeFault(ctx, w, http.StatusInternalServerError,
			&soap.Fault{Code: soap.FaultCodeServer, Message: fmt.Sprintf("No handler for %s", name.Local)})
		return
	}

	respBody, err := handler(ctx, body, header)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	s.writeEnvelope(ctx, w, http.StatusOK, respBody)
}

func (s *Server) handleNotifyUssdReception(ctx context.Context, body, header []byte) ([]byte, error) {
	msg, err := parlayx.ParseUSSDMessage(body)
	if err != nil {
		return nil, &soap.Fault{Code: soap.FaultCodeClient, Message: "Malformed SOAP request"}
	}
	linkid := soap.FindText(header, "linkid")
	ctx = logging.ContextWithLinkid(ctx, linkid)

	// The senderCB callback address doubles as the session identifier.
	if err := s.receive(ctx, msg.SenderCB, linkid, msg); err != nil {
		return nil, err
	}
	return parlayx.ReceptionSuccessResponse()
}

// writeError converts a handler failure into a fault response. The
// carrier gets a valid envelope for every parseable request; nothing
// upstream re-interprets the fault afterwards.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	slog.ErrorContext(ctx, "Failure processing notification", slog.Any("error", err))

	if errors.Is(err, session.ErrNotFound) {
		s.writeFault(ctx, w, http.StatusBadRequest,
			&soap.Fault{Code: soap.FaultCodeClient, Message: err.Error()})
		return
	}
	var f *soap.Fault
	if errors.As(err, &f) {
		status := http.StatusInternalServerError
		if f.Code == soap.FaultCodeClient {
			status = http.StatusBadRequest
		}
		s.writeFault(ctx, w, status, f)
		return
	}
	s.writeFault(ctx, w, http.StatusInternalServerError,
		&soap.Fault{Code: soap.FaultCodeServer, Message: err.Error()})
}

func (s *Server) writeFault(ctx context.Context, w http.ResponseWriter, status int, f *soap.Fault) {
	doc, err := soap.FaultEnvelope(f)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to render fault envelope", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	if _, err := w.Write(doc); err != nil {
		slog.WarnContext(ctx, "Failed to write fault response", slog.Any("error", err))
	}
}

func (s *Server) writeEnvelope(ctx context.Context, w http.ResponseWriter, status int, body []byte) {
	doc, err := soap.Envelope(body, nil)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to render response envelope", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeXML)
	w.WriteHeader(status)
	if _, err := w.Write(doc); err != nil {
		slog.WarnContext(ctx, "Failed to write response", slog.Any("error", err))
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.httpServer != nil {
			s.httpServer.SetKeepAlivesEnabled(false)
			err = s.httpServer.Shutdown(ctx)
			s.httpServer = nil
		}
		slog.InfoContext(ctx, "Notification server Shutdown() called.")
	})
	return err
}
