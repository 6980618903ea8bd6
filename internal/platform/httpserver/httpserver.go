package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cutl.local/internal/platform/config"
)

// New 用配置里的超时构造 server；addr 为空时用 cfg.Addr
func New(cfg config.Config, addr string, handler http.Handler) *http.Server {
	if addr == "" {
		addr = cfg.Addr
	}
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
	}
}

// RunWithGracefulShutdownContext 阻塞直到 server 出错或 stopCtx 结束；结束时最多等 shutdownTimeout 让请求处理完
func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
