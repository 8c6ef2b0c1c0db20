// Package web serves the controller's status, recent logs and metrics.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Handler routes the status API. logs and metrics may be nil.
func Handler(status *Status, logs *LogBuffer, metrics http.Handler, accessLog io.Writer) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/fan", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status.Snapshot(time.Now().UTC()).Fan)
	}).Methods(http.MethodGet)

	if logs != nil {
		r.HandleFunc("/api/logs", logs.serveHTTP).Methods(http.MethodGet)
	}
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

// Server is an http.Server that stops with its context.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr immediately so configuration errors surface at startup.
func Listen(addr string, h http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve blocks until Shutdown or a listener error.
func (s *Server) Serve() error {
	log.WithField("component", "web").Infof("listening on %s", s.Addr())
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}
