// Command picsart-mock serves a local emulation of the Picsart Image and
// GenAI APIs for development and tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/me/creativeapis/internal/fakeapi"
	"github.com/me/creativeapis/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8089", "Listen address")
	apiKey := flag.String("api-key", "", "Require this API key (default accepts any non-empty key)")
	pendingPolls := flag.Int("pending-polls", 2, "Polls an async job reports as processing")
	credits := flag.Float64("credits", 100, "Starting credit balance")
	failures := flag.String("fail", "", "Comma-separated HTTP statuses returned by the first requests")
	failJobs := flag.Bool("fail-jobs", false, "Make every text to image inference fail")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	logger := logging.NewLogger(logging.ParseLevel(*logLevel), *logFormat)

	opts := []fakeapi.Option{
		fakeapi.WithPendingPolls(*pendingPolls),
		fakeapi.WithCredits(*credits),
	}
	if *apiKey != "" {
		opts = append(opts, fakeapi.WithAPIKey(*apiKey))
	}
	if *failJobs {
		opts = append(opts, fakeapi.WithFailedJobs())
	}
	if *failures != "" {
		var statuses []int
		for _, s := range strings.Split(*failures, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil || code < 400 || code > 599 {
				fmt.Fprintf(os.Stderr, "invalid --fail status %q\n", s)
				os.Exit(2)
			}
			statuses = append(statuses, code)
		}
		opts = append(opts, fakeapi.WithFailures(statuses...))
	}

	srv := fakeapi.New(logger, opts...)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("mock server starting", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
