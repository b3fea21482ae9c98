package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/debate-arena/backend/internal/config"
	"github.com/zhouzirui/debate-arena/backend/internal/handler"
	debatehandler "github.com/zhouzirui/debate-arena/backend/internal/handler/debate"
	"github.com/zhouzirui/debate-arena/backend/internal/logging"
	"github.com/zhouzirui/debate-arena/backend/internal/service/broadcast"
	debateservice "github.com/zhouzirui/debate-arena/backend/internal/service/debate"
	"github.com/zhouzirui/debate-arena/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Str("module", "cmd.api").Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log)
	if envErr != nil {
		log.Warn().Str("module", "cmd.api").Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	registry := debateservice.NewRegistry()
	hub := broadcast.NewHub()

	// Initialize speech bridge
	var bridges debatehandler.SpeechBridge
	var manager *speech.Manager
	if cfg.Speech.Enabled {
		dialer := speech.NewWebSocketDialer(cfg.Speech.SpeechConfig, speech.DialerOptions{
			HandshakeTimeout: cfg.Speech.DialTimeout,
			ReadLimit:        speech.DefaultDialerOptions().ReadLimit,
		})
		manager = speech.NewManager(cfg.Speech.SpeechConfig, dialer, debatehandler.NewHubNotifier(hub))
		bridges = manager
		log.Info().Str("module", "cmd.api").Str("upstream", cfg.Speech.UpstreamURL).Msg("speech relay enabled")
	} else {
		log.Info().Str("module", "cmd.api").Msg("speech relay disabled by configuration")
	}

	limiter := debatehandler.NewRateLimiter(cfg.Realtime.EventRateLimit, cfg.Realtime.EventRateInterval)
	dispatcher := debatehandler.NewDispatcher(registry, hub, bridges, limiter)
	realtime := debatehandler.NewWebSocketHandler(dispatcher, hub, debatehandler.Options{
		SendBuffer: cfg.Realtime.SendBuffer,
		ReadLimit:  cfg.Realtime.ReadLimit,
		PingPeriod: cfg.Realtime.PingPeriod,
		PongWait:   cfg.Realtime.PongWait,
	})

	router := handler.NewRouter(registry, realtime)

	if err := runServer(ctx, cfg.Server, router, hub, manager); err != nil {
		log.Fatal().Str("module", "cmd.api").Err(err).Msg("server error")
	}
	log.Info().Str("module", "cmd.api").Msg("server exited gracefully")
}

func runServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *broadcast.Hub, manager *speech.Manager) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("module", "cmd.api").Str("addr", serverCfg.Addr).Msg("debate relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "cmd.api").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// hijacked websocket connections are not tracked by Shutdown
		hub.CloseAll()
		if manager != nil {
			if serr := manager.Shutdown(shutdownCtx); serr != nil {
				log.Warn().Str("module", "cmd.api").Err(serr).Msg("speech sessions did not stop in time")
			}
		}
		return err
	})

	return g.Wait()
}
