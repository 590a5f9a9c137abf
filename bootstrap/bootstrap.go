package bootstrap

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"

	"github.com/fulldump/realmdb/api"
	"github.com/fulldump/realmdb/binding"
	"github.com/fulldump/realmdb/configuration"
)

var VERSION = "dev"

// Bootstrap wires the runtime and the http server. start blocks until stop
// is called or a termination signal arrives.
func Bootstrap(c *configuration.Configuration, logger *slog.Logger) (start, stop func(), err error) {

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data directory: %w", err)
	}

	rt, err := binding.Init(func(h binding.Handle, managedState any) {
		logger.Debug("realm changed", "handle", h)
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	b := api.Build(rt, api.Options{
		Dir:       c.Dir,
		Version:   VERSION,
		ApiKey:    c.ApiKey,
		ApiSecret: c.ApiSecret,
	})
	if c.EnableCompression {
		b.WithInterceptors(api.Compression)
	}
	b.WithInterceptors(
		api.AccessLog(log.New(os.Stdout, "ACCESS: ", 0)),
		api.RecoverFromPanic,
		api.PrettyErrorInterceptor,
	)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		binding.Shutdown()
		return nil, nil, err
	}
	logger.Info("listening", "addr", ln.Addr().String(), "dir", c.Dir)

	stopped := make(chan struct{})
	stopOnce := sync.Once{}
	stop = func() {
		stopOnce.Do(func() {
			defer close(stopped)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				logger.Error("http shutdown", "err", err)
			}
			binding.Shutdown()
			logger.Info("stopped")
		})
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", "signal", sig.String())
		stop()
	}()

	start = func() {
		err := s.Serve(ln)
		if err == http.ErrServerClosed {
			<-stopped
			return
		}
		logger.Error("http serve", "err", err)
		stop()
	}

	return start, stop, nil
}
