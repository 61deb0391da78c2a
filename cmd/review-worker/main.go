// Command review-worker consumes enrich, notify and summarize tasks.
//
// With QUEUE_BACKEND=pubsub or nats it runs one pull consumer per channel and,
// unless -dispatch=false, the outbox dispatcher that publishes committed tasks.
// With QUEUE_BACKEND=direct it runs the in-process task poller instead.
//
// Usage:
//
//	go run ./cmd/review-worker -channels enrich,notify
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/nlu"
	"github.com/mmdatafocus/feedback_backend/notification"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/mmdatafocus/feedback_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	channels := flag.String("channels", strings.Join(config.Channels, ","), "Comma-separated channels to consume")
	dispatch := flag.Bool("dispatch", true, "Also run the outbox dispatcher")
	concurrency := flag.Int("concurrency", config.IntFromEnv("WORKER_CONCURRENCY", 10), "Messages in flight per channel")
	metricsAddr := flag.String("metrics-addr", os.Getenv("WORKER_METRICS_ADDR"), "Optional address to serve /metrics on")
	flag.Parse()

	selected := []string{}
	for _, ch := range strings.Split(*channels, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if !config.IsKnownChannel(ch) {
			fmt.Fprintf(os.Stderr, "unknown channel %q (want one of %s)\n", ch, strings.Join(config.Channels, ", "))
			os.Exit(2)
		}
		selected = append(selected, ch)
	}
	if len(selected) == 0 {
		fmt.Fprintln(os.Stderr, "no channels selected")
		os.Exit(2)
	}

	logger := config.GetLogger()
	metrics := observability.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	if config.EnvBool("REDIS_ENABLED", true) {
		config.ConnectRedisWithRetry()
	}
	defer config.CloseNats()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				config.LogError(logger, "review-worker", "main", "Serving metrics", *metricsAddr, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	analyzerConfig := nlu.ConfigFromEnv()
	analyzerConfig.Metrics = metrics
	processor := workflow.NewProcessor(db, nlu.New(analyzerConfig), notification.NewRouterFromEnv(logger, metrics), logger, metrics)

	backend := config.QueueBackend()
	logger.WithFields(logrus.Fields{
		"field":         "worker",
		"queue_backend": backend,
		"channels":      selected,
	}).Info("review worker starting")

	var wg sync.WaitGroup
	if backend == config.QueueBackendDirect {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workflow.NewDirectProcessor(db, logger, processor).Run(ctx)
		}()
		wg.Wait()
		return
	}

	if *dispatch {
		publisher, err := workflow.NewPublisher(backend)
		if err != nil {
			fmt.Fprintf(os.Stderr, "publisher: %v\n", err)
			os.Exit(1)
		}
		dispatcher := workflow.NewOutboxDispatcher(db, logger, publisher)
		dispatcher.Metrics = metrics
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()
	}

	for _, ch := range selected {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			// A consumer that fails to attach is retried until shutdown.
			for ctx.Err() == nil {
				var err error
				if backend == config.QueueBackendNats {
					err = workflow.RunNatsConsumer(ctx, processor, channel, *concurrency)
				} else {
					err = workflow.RunPubSubConsumer(ctx, processor, channel, *concurrency)
				}
				if err == nil || ctx.Err() != nil {
					return
				}
				config.LogError(logger, "review-worker", "main", "Running consumer", channel, err)
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
				}
			}
		}(ch)
	}
	wg.Wait()
	logger.WithFields(logrus.Fields{"field": "worker"}).Info("review worker stopped")
}
