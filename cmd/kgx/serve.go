package kgx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-kgextract"
	"github.com/soundprediction/go-kgextract/pkg/server"
	"github.com/soundprediction/go-kgextract/pkg/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP server",
	Long: `Start an HTTP server exposing the extractors:

  POST /v1/extract   {"text": "..."}
  POST /v1/features  {"sentence": "...", "entity1": "...", "entity2": "..."}
  GET  /health
  GET  /ready`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("mode", "debug", "Server mode (debug, release, test)")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.closer()
	cfg, logger := e.cfg, e.logger

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("mode") {
		cfg.Server.Mode, _ = flags.GetString("mode")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	p, err := kgextract.NewPipeline(c.annotator, c.entities, c.relations, &kgextract.Config{
		Workers: cfg.Extract.Workers,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, server.Dependencies{
		Extract:  handlers.NewExtractHandler(p, string(c.relations.Mode()), logger),
		Features: handlers.NewFeaturesHandler(c.features, c.bundle, logger),
		Checks:   []handlers.Check{{Name: "vocabulary", Fn: c.vocabularyCheck}},
		Logger:   logger,
	})
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	select {
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}
