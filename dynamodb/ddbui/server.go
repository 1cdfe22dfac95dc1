package ddbui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/acksell/tablekit/dynamodb/ddbsdk"
	"github.com/acksell/tablekit/dynamodb/schema"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// ServerConfig configures the debug UI server.
type ServerConfig struct {
	// Addr is the address to listen on, e.g. ":8080".
	Addr string
	// ShutdownTimeout bounds the graceful shutdown. Zero means 5 seconds.
	ShutdownTimeout time.Duration
}

// Server is the debug UI HTTP server.
type Server struct {
	config ServerConfig
	api    *APIHandler
	log    zerolog.Logger
}

// NewServer creates a server over client. reg must be the registry the
// client's table was built from.
func NewServer(config ServerConfig, client *ddbsdk.Client, reg *schema.Registry, log zerolog.Logger) *Server {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config: config,
		api:    NewAPIHandler(client, reg),
		log:    log.With().Str("component", "ddbui").Logger(),
	}
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.api.RegisterRoutes(mux)

	var h http.Handler = corsMiddleware(mux)
	h = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("took", d).
			Msg("request")
	})(h)
	return hlog.NewHandler(s.log)(h)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("debug UI listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("debug UI stopped")
	return nil
}

// corsMiddleware adds CORS headers for development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
