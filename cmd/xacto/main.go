package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/config"
	"xacto/pkg/db"
	"xacto/pkg/server"
)

func main() {
	cfg := config.NewConfig()
	err := cfg.Parse(os.Args[1:])

	switch errors.Cause(err) {
	case nil:
	case flag.ErrHelp:
		exit(0)
	default:
		log.Fatal("parse cmd flags error", zap.Error(err))
	}

	// New zap logger
	err = cfg.SetupLogger()
	if err == nil {
		log.ReplaceGlobals(cfg.GetZapLogger(), cfg.GetZapLogProperties())
	} else {
		log.Fatal("initialize logger error", zap.Error(err))
	}
	// Flushing any buffered log entries
	defer log.Sync()

	for _, msg := range cfg.WarningMsgs {
		log.Warn(msg)
	}

	svr := server.New(cfg, db.New())
	handleSignal(svr, cfg)

	if err := svr.ListenAndServe(); err != nil {
		log.Fatal("run server failed", zap.Error(err))
	}
	<-shutdownDone
	log.Info("Server stopped.")
}

var shutdownDone = make(chan struct{})

func handleSignal(svr *server.Server, cfg *config.Config) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		defer close(shutdownDone)
		sig := <-sigCh
		log.Info("Got signal to exit", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()
		if err := svr.Shutdown(ctx); err != nil {
			log.Warn("shutdown incomplete", zap.Error(err))
		}
	}()
}

func exit(code int) {
	log.Sync()
	os.Exit(code)
}
