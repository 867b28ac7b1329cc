// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/thunderlink/internal/bridgeclient"
	"github.com/unclebandit/thunderlink/internal/campaign"
	"github.com/unclebandit/thunderlink/internal/config"
	"github.com/unclebandit/thunderlink/internal/controller"
	"github.com/unclebandit/thunderlink/internal/logger"
	"github.com/unclebandit/thunderlink/internal/queue"
	"github.com/unclebandit/thunderlink/internal/status"
	"github.com/unclebandit/thunderlink/internal/supervisor"
)

func main() {
	cfg := config.Load()
	if err := logger.StartLogger(cfg.LogDir, "server", cfg.LogLevel); err != nil {
		log.Fatalf("failed to start logger: %v", err)
	}
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := bridgeclient.New(cfg.BridgeURL)

	bridgeLog := logger.RotatingWriter(cfg.BridgeLog)
	defer bridgeLog.Close()
	sup := supervisor.New(cfg.BridgeCmd, bridge.Ping, bridge.Shutdown, bridgeLog, cfg.RespawnBackoff)
	if err := sup.Start(ctx); err != nil {
		zap.L().Error("❌ Failed to start bridge", zap.Error(err))
	}

	watcher := bridgeclient.NewWatcher(bridge, cfg.MirrorInterval, func(ctx context.Context) {
		if err := sup.Ensure(ctx); err != nil && !errors.Is(err, supervisor.ErrStopped) {
			zap.L().Error("❌ Failed to respawn bridge", zap.Error(err))
		}
	})

	mem := queue.NewInMemoryQueue()
	if err := queue.StartCampaignEventSubscriber(mem); err != nil {
		zap.L().Fatal("failed to subscribe to campaign events", zap.Error(err))
	}
	var q queue.Queue = mem
	if cfg.AMQPURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQPURL)
		if err != nil {
			zap.L().Warn("⚠️ RabbitMQ unavailable, campaign events stay local", zap.Error(err))
		} else {
			defer amqpQueue.Close()
			q = queue.Fanout{mem, amqpQueue}
		}
	}

	runner := campaign.NewController(bridge, watcher, sup, q, campaign.Config{ReadyTimeout: cfg.ReadyTimeout})
	projection := status.NewProjection(watcher, runner)
	campaignController := controller.NewCampaignController(runner, projection, bridge, sup, watcher, cfg.UploadDir, cfg.SendDelay)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           controller.NewRouter(campaignController),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		zap.L().Info("🚀 Server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("🛑 Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		runner.Stop()
		err := srv.Shutdown(shutdownCtx)
		if serr := sup.Stop(shutdownCtx); serr != nil {
			zap.L().Warn("failed to stop bridge", zap.Error(serr))
		}
		if werr := runner.Wait(shutdownCtx); werr != nil {
			zap.L().Warn("campaign loop still running at exit", zap.Error(werr))
		}
		mem.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		zap.L().Fatal("server error", zap.Error(err))
	}
}
