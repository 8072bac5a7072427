package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dashsync-go/internal/config"
	"dashsync-go/internal/constants"
	"dashsync-go/internal/logging"
	"dashsync-go/internal/monitoring/tracing"
	"dashsync-go/internal/version"

	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (searched when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	defer cfgMgr.Close()

	current := func() *config.Config {
		cfg := cfgMgr.Get()
		if *debug {
			cfg.Logging.Debug = true
		}
		return cfg
	}

	if err := logging.Setup(current()); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}
	log.WithFields(log.Fields{"version": version.Version, "config": cfgMgr.Path()}).Info("starting dashsync")

	traceShutdown, err := tracing.Init(context.Background(), tracing.Options{})
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	defer func() {
		if traceShutdown == nil {
			return
		}
		if err := traceShutdown(context.Background()); err != nil {
			log.WithError(err).Warn("failed to shutdown tracing")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newAgent(ctx, current)
	if err != nil {
		log.WithError(err).Fatal("failed to build agent")
	}
	cfgMgr.SetEventPublisher(a.hub)
	cfgMgr.OnChange(func(*config.Config) { a.applyConfig(current()) })

	if err := a.start(); err != nil {
		log.WithError(err).Fatal("failed to start agent")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)
	log.Info("dashsync stopped")
}
