package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timebankhq/timebank-go/internal/api"
	"github.com/timebankhq/timebank-go/internal/chat"
	"github.com/timebankhq/timebank-go/internal/config"
	"github.com/timebankhq/timebank-go/internal/domain"
	"github.com/timebankhq/timebank-go/internal/exchange"
	"github.com/timebankhq/timebank-go/internal/notify"
	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/internal/session"
	"github.com/timebankhq/timebank-go/shared/contracts"
	"github.com/timebankhq/timebank-go/shared/logging"
	"github.com/timebankhq/timebank-go/shared/metrics"
	"github.com/timebankhq/timebank-go/shared/monitoring"
	"github.com/timebankhq/timebank-go/shared/recovery"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLogger(&logging.Config{
		Level:       cfg.LogLevel,
		Service:     "exchange-monitor",
		Environment: cfg.Environment,
		PrettyLog:   cfg.PrettyLog,
	})

	if err := monitoring.InitSentry(&monitoring.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServiceName: "exchange-monitor",
	}); err != nil {
		logger.WithError(err).Warn("sentry initialization failed, continuing without it")
	}
	defer monitoring.FlushSentry(2 * time.Second)

	met := metrics.NewDefault("timebank", "exchange_monitor")
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			logger.WithError(err).Warn("metrics endpoint failed")
		}
	}()

	sess, err := session.NewFromToken(cfg.Token)
	if err != nil {
		logger.WithError(err).Warn("no usable session token, connecting anonymously")
		sess = session.New("", cfg.Token)
	}

	client := api.NewClient(cfg.APIBaseURL, sess.Token(),
		api.WithLogger(logger), api.WithMetrics(met))
	svc := api.NewExchangeService(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex, err := resolveExchange(ctx, cfg, svc, logger)
	if err != nil {
		logger.WithError(err).Error("could not load exchange")
		os.Exit(1)
	}
	logger.WithField("exchange_id", ex.ID).WithField("status", ex.Status).Info("attached to exchange")

	sink := notify.NewChannelSink(32, met)
	policy := cfg.Reconnect.Policy()

	statusConn := realtime.New(cfg.WSBaseURL, realtime.WithLogger(logger), realtime.WithMetrics(met))
	statusConsumer := exchange.NewConsumer(*ex, sess, statusConn, svc, sink, logger)
	statusConsumer.Start(policy)
	defer statusConsumer.Stop()

	chatConn := realtime.New(cfg.WSBaseURL, realtime.WithLogger(logger), realtime.WithMetrics(met))
	chatConsumer := chat.NewConsumer(ex.ID, sess, chatConn, chat.WithLogger(logger))
	chatConsumer.Start(policy)
	defer chatConsumer.Stop()

	recovery.SafeGo(logger, "notification_stream", func() {
		for n := range sink.C() {
			logger.WithField("kind", n.Kind).
				WithField("exchange_id", n.ExchangeID).
				Info(n.Message)
		}
	})

	recovery.SafeGo(logger, "chat_stream", func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tail, next := chatTail(chatConsumer.Messages(), seen)
				for _, m := range tail {
					who := m.SenderName
					if chatConsumer.Mine(m) {
						who = "you"
					}
					logger.WithField("from", who).Info(m.Content)
				}
				seen = next
			}
		}
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
}

// chatTail returns the messages past the seen high-water mark and the new
// mark. A snapshot after reconnect can shrink the list, so the mark clamps
// instead of slicing out of range.
func chatTail(msgs []contracts.ChatMessage, seen int) ([]contracts.ChatMessage, int) {
	if seen > len(msgs) {
		seen = len(msgs)
	}
	return msgs[seen:], len(msgs)
}

func resolveExchange(ctx context.Context, cfg config.Config, svc domain.ExchangeService, logger *logging.Logger) (*domain.Exchange, error) {
	if cfg.ExchangeID != "" {
		return svc.Get(ctx, contracts.ID(cfg.ExchangeID))
	}
	opener := exchange.NewOpener(svc, logger)
	return opener.CreateOrGet(ctx, contracts.ID(cfg.OfferID))
}
