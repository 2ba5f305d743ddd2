package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tempomem/tempomem/internal/admin"
	"github.com/tempomem/tempomem/internal/decay"
	"github.com/tempomem/tempomem/internal/retrieval"
	"github.com/tempomem/tempomem/internal/server"
	"github.com/tempomem/tempomem/internal/writeapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	log := newLogger()
	defer log.Sync()

	// No exporter is configured by default; spans are created and sampled
	// but go nowhere until an OTEL_EXPORTER_OTLP_ENDPOINT-aware exporter is
	// wired in, which keeps a plain `tempomem serve` free of an external
	// collector dependency.
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	ctx := context.Background()
	s, err := openStore(ctx, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c := newClock()

	srv := server.New(s,
		retrieval.New(s, cfg, c, log),
		decay.New(s, cfg, c, log),
		writeapi.New(s, cfg, c),
		admin.New(s, cfg, c),
		log,
		VersionString())

	httpServer := &http.Server{Addr: addr, Handler: srv}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "tempomem serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", getDBPath())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
