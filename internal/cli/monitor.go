package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"servecheck/internal/monitor"
)

type monitorOptions struct {
	outDir   string
	interval time.Duration
	duration time.Duration
}

func runMonitor(ctx context.Context, o *monitorOptions, log zerolog.Logger) error {
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}
	m := monitor.New(o.interval, log)
	if err := m.Run(ctx, o.outDir); err != nil {
		return err
	}
	log.Info().Int("samples", m.Series.Len()).Msg("monitoring stopped")
	return nil
}
