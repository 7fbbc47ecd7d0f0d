package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/mermaidbot/internal/adapters/http"
	"github.com/PabloGalante/mermaidbot/internal/contract"
)

var flagPort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Serve the session API:

  POST /sessions                  start a session
  GET  /sessions/{id}             current snapshot
  POST /sessions/{id}/messages    send a message {"text": "..."}
  POST /sessions/{id}/reset       start over
  GET  /sessions/{id}/diagram     latest diagram source and preview
  GET  /sessions/{id}/events      WebSocket stream of snapshots

The contract file, when given, is reloaded whenever it changes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "listen port (default $MERMAIDBOT_PORT or 8080)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", "error", err)
		}
	}()

	srv := newHTTPServer(cfg.Port, httpadapter.NewServer(a.svc))
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("mermaidbot API listening", "addr", ln.Addr().String())
		return serveHTTP(gctx, srv, ln, 10*time.Second)
	})

	if cfg.ContractPath != "" {
		g.Go(func() error {
			return contract.Watch(gctx, cfg.ContractPath, a.contracts, a.logger)
		})
	}

	return g.Wait()
}

// newHTTPServer builds the API server. Request contexts derive from
// context.Background so a shutdown signal does not cancel in-flight turns.
func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveHTTP serves on ln until ctx is done, then gives in-flight requests
// up to drain to finish.
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
