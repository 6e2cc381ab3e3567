package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"servecheck/internal/fakeserve"
)

type stubOptions struct {
	inferenceAddr  string
	managementAddr string
	metricsAddr    string
}

func runStub(ctx context.Context, o *stubOptions, log zerolog.Logger) error {
	srv := fakeserve.New(fakeserve.Options{Log: log})
	servers := []*http.Server{
		{Addr: o.inferenceAddr, Handler: srv.InferenceHandler(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: o.managementAddr, Handler: srv.ManagementHandler(), ReadHeaderTimeout: 5 * time.Second},
	}
	if o.metricsAddr != "" {
		servers = append(servers, &http.Server{Addr: o.metricsAddr, Handler: srv.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second})
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		g.Go(func() error {
			log.Info().Str("addr", s.Addr).Msg("stub listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range servers {
			_ = s.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}
