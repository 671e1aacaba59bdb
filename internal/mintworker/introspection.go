package mintworker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/antron3000/bitbar-mint-coordinator/internal/journal"
	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
)

// IntrospectionServer is the Worker's small local HTTP surface: GET /status
// and GET /mints, plus the ambient /healthz.
type IntrospectionServer struct {
	httpSrv   *http.Server
	scheduler *Scheduler
	journal   *journal.Journal
	startedAt time.Time
}

// NewIntrospectionServer builds a server bound to addr.
func NewIntrospectionServer(addr string, s *Scheduler, j *journal.Journal) *IntrospectionServer {
	srv := &IntrospectionServer{scheduler: s, journal: j, startedAt: time.Now()}

	router := httprouter.New()
	router.GET("/status", srv.handleStatus)
	router.GET("/mints", srv.handleMints)
	router.GET("/healthz", srv.handleHealthz)

	srv.httpSrv = &http.Server{Addr: addr, Handler: router}
	return srv
}

// ListenAndServe blocks serving HTTP until shut down.
func (s *IntrospectionServer) ListenAndServe() error {
	log.Info("worker introspection server listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server.
func (s *IntrospectionServer) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

type statusView struct {
	UptimeMS        int64          `json:"uptime"`
	ActiveOps       []string       `json:"activeOperations"`
	PendingRetries  []retryView    `json:"pendingRetries"`
	TotalMints      int            `json:"totalMints"`
}

type retryView struct {
	TxID       string `json:"txid"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"maxRetries"`
}

func (s *IntrospectionServer) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := s.journal.Load()
	if err != nil {
		http.Error(w, "load journal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	retries := s.scheduler.PendingRetries()
	retryViews := make([]retryView, 0, len(retries))
	for _, r := range retries {
		retryViews = append(retryViews, retryView{TxID: r.TxID, Attempts: r.Attempts, MaxRetries: r.MaxRetries})
	}

	writeJSON(w, statusView{
		UptimeMS:       time.Since(s.startedAt).Milliseconds(),
		ActiveOps:      s.scheduler.ActiveOperations(),
		PendingRetries: retryViews,
		TotalMints:     len(entries),
	})
}

func (s *IntrospectionServer) handleMints(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	entries, err := s.journal.Load()
	if err != nil {
		http.Error(w, "load journal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *IntrospectionServer) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("worker introspection: failed to encode response", "err", err)
	}
}
