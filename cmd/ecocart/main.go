package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"EcoCart/internal/app"
	"EcoCart/internal/config"
	"EcoCart/internal/domain"
	"EcoCart/internal/logging"
)

const (
	exitOK         = 0
	exitFailed     = 1
	exitNotStarted = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run keeps stdout for the JSON result alone; logs, gin output and progress go to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("ecocart", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		productURL = flags.String("url", "", "product page URL to analyze")
		imageURL   = flags.String("image", "", "product image URL to analyze")
		serve      = flags.Bool("serve", false, "run the HTTP API instead of a single analysis")
	)
	if err := flags.Parse(args); err != nil {
		return exitNotStarted
	}

	gin.DefaultWriter = stderr
	gin.DefaultErrorWriter = stderr

	cfg := config.Load()
	logger := logging.NewWithWriter(stderr, cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		return exitFailed
	}
	defer application.Close()

	if *serve {
		if err := application.Serve(ctx); err != nil {
			logger.Error("http server stopped", "error", err)
			return exitFailed
		}
		return exitOK
	}

	ref := domain.ProductReference{URL: *productURL, ImageURI: *imageURL}
	result, err := application.Analyze(ctx, ref, func(ev domain.ProgressEvent) {
		fmt.Fprintf(stderr, "[%s] %s\n", ev.Stage, ev.Message)
	})
	if err != nil {
		logger.Error("analysis not started", "error", err)
		return exitNotStarted
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("encode result", "error", err)
		return exitFailed
	}
	if result.Status != domain.StatusCompleted {
		return exitFailed
	}
	return exitOK
}
