// Package monitorapi is the monitor's thin HTTP/JSON surface over the
// Ledger. It never touches the upstream explorer; every handler is a
// direct read or write against the Ledger.
package monitorapi

import (
	"context"
	"net/http"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/ledger"
	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// LastChecker reports when the most recent poll finished, successful or
// not, in epoch milliseconds, for the /api/status endpoint.
type LastChecker interface {
	LastCheckMS() int64
}

// Server is the Monitor's HTTP API. It owns no state of its own beyond the
// Ledger handle and the process start time used for uptime reporting.
type Server struct {
	httpSrv   *http.Server
	ledger    *ledger.Ledger
	poller    LastChecker
	startedAt time.Time
}

// New builds a Server bound to addr. poller may be nil in tests that don't
// exercise /api/status's lastCheck field.
func New(addr string, l *ledger.Ledger, poller LastChecker) *Server {
	s := &Server{
		ledger:    l,
		poller:    poller,
		startedAt: time.Now(),
	}

	router := httprouter.New()
	router.GET("/api/pending-mints", s.handlePendingMints)
	router.POST("/api/confirm-mint", s.handleConfirmMint)
	router.GET("/api/status", s.handleStatus)
	router.GET("/api/minted", s.handleMinted)
	router.GET("/healthz", s.handleHealthz)

	handler := cors.Default().Handler(router)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down. It
// returns nil on a graceful Shutdown, matching http.Server's contract.
func (s *Server) ListenAndServe() error {
	log.Info("monitor API listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown performs an orderly stop on SIGTERM: in-flight requests are
// given ctx's deadline to finish before the listener is torn down. The
// caller is responsible for closing the Ledger afterward.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
