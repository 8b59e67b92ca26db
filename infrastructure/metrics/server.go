package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server serves the metrics of a node on /metrics.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// NewServer listens on address and prepares a server for m. Serving
// starts with Start.
func NewServer(address string, m *Metrics) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen for metrics on %s", address)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
	return &Server{
		httpServer: &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener:   listener,
	}, nil
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	spawn(func() {
		log.Infof("Serving metrics on %s", s.listener.Addr())
		err := s.httpServer.Serve(s.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %s", err)
		}
	})
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.WithStack(s.httpServer.Shutdown(ctx))
}

