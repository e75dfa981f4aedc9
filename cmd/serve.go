package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/itish2003/ragagent/controller"
	"github.com/itish2003/ragagent/services"
)

var (
	flagServePort  string
	flagServeWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServePort, "port", "", "Port to listen on (default from PORT)")
	serveCmd.Flags().BoolVar(&flagServeWatch, "watch", true, "Index files dropped into the upload directory (also WATCH_UPLOADS)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withAgent(ctx); err != nil {
		return err
	}

	port := a.cfg.Port
	if flagServePort != "" {
		port = flagServePort
	}
	if a.cfg.LogMode == "prod" || a.cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rc := controller.NewRAGController(a.docs, a.retrieval, a.agent, a.tables, a.registry, a.log)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           controller.NewRouter(rc, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if flagServeWatch && a.cfg.WatchUploads {
		watcher := services.NewWatcherService(a.docs, a.log)
		g.Go(func() error {
			if _, err := watcher.ScanDirectory(gctx); err != nil {
				a.log.Warn("initial scan failed", "error", err)
			}
			return watcher.Watch(gctx)
		})
	}

	g.Go(func() error {
		a.log.Info("server starting", "addr", "http://localhost:"+port, "model", a.model.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
