package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// mockasr stands in for the transcription service during local development.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Str("module", "cmd.mockasr").Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	addr := flag.String("addr", envOr("MOCK_ASR_ADDR", ":8000"), "监听地址")
	window := flag.Duration("window", 3*time.Second, "每次识别累积的音频时长")
	flag.Parse()

	windowBytes := int(window.Seconds() * sampleRate * 2)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMockServer(windowBytes).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("module", "cmd.mockasr").Str("addr", *addr).Dur("window", *window).Msg("mock transcription service listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Str("module", "cmd.mockasr").Err(err).Msg("server error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
