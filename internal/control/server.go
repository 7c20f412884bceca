package control

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/monitor"
)

// Server exposes Prometheus metrics and the factory state over HTTP.
type Server struct {
	factory *Factory
	server  *http.Server
}

// NetworkHealth describes one configured network.
type NetworkHealth struct {
	Network   domain.Network `json:"network"`
	Active    bool           `json:"active"` // a service has been built
	Wallet    string         `json:"wallet,omitempty"`
	Monitored []string       `json:"monitored,omitempty"`
}

// NewServer creates a server listening on addr.
func NewServer(factory *Factory, addr string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		factory: factory,
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests. It returns nil after Stop.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"networks": s.factory.GetSupportedNetworks(),
	})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.factory.Health())
}

// Health reports every configured network without building services.
func (f *Factory) Health() []NetworkHealth {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]NetworkHealth, 0, len(f.networks))
	for _, n := range f.GetSupportedNetworks() {
		h := NetworkHealth{Network: n}
		if svc, ok := f.services[n]; ok {
			h.Active = true
			if wallet := svc.GetWalletInfo(); wallet != nil {
				h.Wallet = wallet.Address
			}
			if m, ok := svc.(interface{ Monitor() *monitor.Monitor }); ok {
				h.Monitored = m.Monitor().Active()
			}
		}
		out = append(out, h)
	}
	return out
}
