package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/api"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP API",
	Long: `Serve exposes the pipeline over HTTP: submit invoices, process them,
fetch results and list the manual review queue. Shuts down gracefully on
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":8080", "address to listen on")
	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	cfg, err := loadConfigAndLogger()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	log := logger.GetGlobalLogger().WithComponent("serve")

	st, engine, err := buildPipeline(cfg)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(st, engine, logger.GetGlobalLogger()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("HTTP API listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			os.Exit(handler.HandleError(err))
		}
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			os.Exit(handler.HandleError(err))
		}
	}

	return nil
}
