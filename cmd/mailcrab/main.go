// Command mailcrab runs MailCrab: an inbound SMTP sink that captures every
// message it receives and exposes it over a small read-only HTTP API and a
// live websocket subscription, for inspecting outbound mail from local
// development and test environments.
package main

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mailcrab/mailcrab/internal/broadcast"
	"github.com/mailcrab/mailcrab/internal/certs"
	"github.com/mailcrab/mailcrab/internal/config"
	"github.com/mailcrab/mailcrab/internal/httpapi"
	"github.com/mailcrab/mailcrab/internal/mail"
	"github.com/mailcrab/mailcrab/internal/observability"
	"github.com/mailcrab/mailcrab/internal/smtp"
	"github.com/mailcrab/mailcrab/internal/store"
	"github.com/mailcrab/mailcrab/internal/version"
)

// shutdownGrace bounds how long in-flight work is given to wind down after
// the shutdown signal fires, per the top-level orchestrator's 5-second
// ceiling.
const shutdownGrace = 5 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("mailcrab: fatal error", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("mailcrab: starting", "version", version.Version,
		"smtp_addr", cfg.SMTP.Addr(), "http_addr", cfg.HTTP.Addr())

	bus := broadcast.New[mail.Message](cfg.Broadcast.QueueCapacity)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	st := store.New(time.Duration(cfg.Retention.PeriodSeconds)*time.Second, logger, metrics)

	// Subscribe the store's consumer before anything can publish, so the
	// SMTP backend never sees a spurious "no subscribers" error for the
	// very first message.
	storeSub := bus.Subscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsMode, tlsConfig, err := resolveTLS(cfg)
	if err != nil {
		return err
	}

	backend := smtp.NewBackend(bus, int64(16<<20), cfg.SMTP.EnableTLSAuth, logger, metrics)
	smtpServer := smtp.NewServer(smtp.Config{
		Addr:            cfg.SMTP.Addr(),
		Domain:          "mailcrab",
		MaxMessageBytes: 16 << 20,
		ReadTimeout:     5 * time.Minute,
		WriteTimeout:    5 * time.Minute,
		TLSMode:         tlsMode,
		TLSConfig:       tlsConfig,
		AuthEnabled:     cfg.SMTP.EnableTLSAuth,
	}, backend, logger)

	router := httpapi.NewRouter(cfg.Prefix, st, bus, logger, metrics)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return st.Run(gctx, storeSub)
	})

	g.Go(func() error {
		err := smtp.Listen(smtp.Config{
			Addr:      cfg.SMTP.Addr(),
			TLSMode:   tlsMode,
			TLSConfig: tlsConfig,
		}, smtpServer, logger)
		if err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return smtpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// resolveTLS mirrors the original implementation's binary wiring exactly:
// ENABLE_TLS_AUTH selects between a plaintext listener with AUTH disabled
// and a wrapped-TLS listener with AUTH enabled. StartTLS remains a mode the
// smtp package supports for embedders, but it is never reached from this
// configuration surface.
func resolveTLS(cfg *config.Config) (smtp.TLSMode, *tls.Config, error) {
	if !cfg.SMTP.EnableTLSAuth {
		return smtp.TLSModeNone, nil, nil
	}

	cert, err := certs.Acquire(".", "mailcrab")
	if err != nil {
		return 0, nil, err
	}
	return smtp.TLSModeWrapped, &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
