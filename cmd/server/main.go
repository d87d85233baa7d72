package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/lanmeet/internal/adapters/http"
	"github.com/dkeye/lanmeet/internal/adapters/session"
	"github.com/dkeye/lanmeet/internal/adapters/tcp"
	"github.com/dkeye/lanmeet/internal/adapters/udp"
	"github.com/dkeye/lanmeet/internal/app"
	"github.com/dkeye/lanmeet/internal/app/orch"
	"github.com/dkeye/lanmeet/internal/app/transfer"
	"github.com/dkeye/lanmeet/internal/config"
	"github.com/dkeye/lanmeet/internal/journal"
	"github.com/dkeye/lanmeet/internal/stats"
	"github.com/dkeye/lanmeet/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	events, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer func() {
		log.Info().Msg("Closing journal")
		_ = events.Close()
	}()

	rooms := app.NewRoomManager(app.RoomOptions{
		MaxParticipants: cfg.MaxParticipants,
		Grace:           cfg.MeetingGrace,
	}, app.NewRegistry())
	relay := app.NewRouter(rooms, app.DefaultPolicy{})

	transferOpts := transfer.Options{
		MaxFileSize: cfg.MaxFileSize,
		IdleTimeout: cfg.TransferIdleTimeout,
		Retention:   cfg.TransferRetention,
	}
	if cfg.ArchiveDir != "" {
		transferOpts.Sink = storage.NewDiskSink(cfg.ArchiveDir)
	}
	transfers := transfer.NewCoordinator(relay, rooms, transferOpts)

	o := &orch.Orchestrator{
		Rooms:     rooms,
		Router:    relay,
		Admin:     app.NewAdminPlane(rooms, relay),
		Transfers: transfers,
		Journal:   events,
	}

	sessions := session.NewHandler(o,
		session.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow),
		session.Options{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			ReliableTimeout:  cfg.ReliableSendTimeout,
			QueueCapacity:    cfg.QueueCapacity,
		})

	ingress := udp.NewIngress(cfg.UDPAddr(), o)
	reporter := stats.NewReporter(rooms, relay, transfers, ingress)

	tcpSrv := &tcp.Server{Addr: cfg.TCPAddr(), Handler: sessions, MaxFrameSize: cfg.MaxFrameSize}
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: router.SetupRouter(ctx, cfg, router.Deps{
			Rooms:     rooms,
			Transfers: transfers,
			Journal:   events,
			Stats:     reporter,
			Sessions:  sessions,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tcpSrv.ListenAndServe(gctx) })
	g.Go(func() error { return ingress.ListenAndServe(gctx) })
	g.Go(func() error { return reporter.Run(gctx, cfg.StatsInterval) })
	g.Go(func() error { return sessions.PruneLimiter(gctx, time.Minute) })
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("lanmeet http started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
