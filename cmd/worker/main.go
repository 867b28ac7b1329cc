package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/config"
	"github.com/unclebandit/thunderlink/internal/logger"
	"github.com/unclebandit/thunderlink/internal/queue"
	"github.com/unclebandit/thunderlink/internal/service"
)

// The worker consumes campaign events the server publishes to RabbitMQ.
func main() {
	cfg := config.Load()
	if err := logger.StartLogger(cfg.LogDir, "worker", cfg.LogLevel); err != nil {
		log.Fatalf("failed to start logger: %v", err)
	}
	defer zap.L().Sync()

	if cfg.AMQPURL == "" {
		zap.L().Fatal("AMQP_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := queue.DialAMQP(cfg.AMQPURL)
	if err != nil {
		zap.L().Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer q.Close()

	worker := service.NewEventWorker()
	if err := q.Subscribe(queue.TopicCampaignEvents, worker.Handle); err != nil {
		zap.L().Fatal("failed to consume campaign events", zap.Error(err))
	}

	zap.L().Info("👷 Worker running, waiting for campaign events...")
	<-ctx.Done()

	handled, dropped := worker.Summary()
	zap.L().Info("📊 Worker stopped", zap.Any("handled", handled), zap.Int("dropped", dropped))
}
