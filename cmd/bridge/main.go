// cmd/bridge/main.go
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

	"github.com/unclebandit/thunderlink/internal/config"
	"github.com/unclebandit/thunderlink/internal/db"
	"github.com/unclebandit/thunderlink/internal/handler"
	"github.com/unclebandit/thunderlink/internal/logger"
	"github.com/unclebandit/thunderlink/internal/whatsapp"
)

func main() {
	cfg := config.Load()
	if err := logger.StartLogger(cfg.LogDir, "bridge", cfg.LogLevel); err != nil {
		log.Fatalf("failed to start logger: %v", err)
	}
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionDB, err := db.Open(cfg.DB)
	if err != nil {
		zap.L().Fatal("failed to open session store", zap.Error(err))
	}
	defer sessionDB.Close()

	bridge := whatsapp.NewBridge(whatsapp.NewWhatsmeowFactory(sessionDB, cfg.DB.Dialect))
	if err := bridge.Start(ctx); err != nil {
		zap.L().Fatal("failed to start WhatsApp client", zap.Error(err))
	}

	api := handler.NewBridgeHandler(bridge)
	srv := &http.Server{
		Addr:              cfg.BridgeAddr,
		Handler:           handler.NewRouter(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("🚀 Bridge API running", zap.String("addr", cfg.BridgeAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// A logged out client cannot pair again in this process; exit and
		// let the supervisor start a fresh one.
		select {
		case <-gctx.Done():
		case <-bridge.LoggedOut():
			zap.L().Info("👋 Logged out, exiting")
		case <-api.ShutdownRequested():
			// sends in flight are dropped, same as a killed process
			zap.L().Warn("💀 Shutdown requested, exiting")
			err := srv.Close()
			bridge.Close()
			return err
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		bridge.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		zap.L().Fatal("bridge error", zap.Error(err))
	}
}
