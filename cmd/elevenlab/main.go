package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"elevenlab/api"
	"elevenlab/auth"
	"elevenlab/config"
	"elevenlab/feed"
	"elevenlab/purchase"
	"elevenlab/store/storedriver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	logrus.SetLevel(cfg.LogLevel)
	if cfg.Production() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := storedriver.Open(ctx, cfg)
	cancel()
	if err != nil {
		logrus.WithError(err).Fatal("failed to open store")
	}

	logrus.WithField("driver", cfg.StoreDriver).
		WithField("policy", cfg.Policy).
		Info("store ready")

	hub := feed.NewHub()
	issuer := auth.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL, cfg.Production())
	purchases := purchase.NewService(st, cfg.Policy, hub)

	ws := api.New(api.Config{
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
	}, st, purchases, issuer, hub)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			err = ws.ListenTLS(cfg.BindAddr, cfg.TLSCert, cfg.TLSKey)
		} else {
			err = ws.Listen(cfg.BindAddr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("failed to start web server")
		}
	}()

	logrus.WithField("addr", cfg.BindAddr).Info("server running")

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit

	hub.Close()

	err = ws.Shutdown()
	if err != nil {
		logrus.WithError(err).Fatal("failed to shutdown web server")
	}

	wg.Wait()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = st.Close(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to close store")
	}
}
