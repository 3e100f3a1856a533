// Package jobs runs periodic background work. The only job probes every
// dependency and exports the result as a gauge.
package jobs

import (
	"context"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mediaingest/internal/metrics"
)

const probeTimeout = 5 * time.Second

type Probe func(ctx context.Context) error

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	probes   map[string]Probe
	log      zerolog.Logger
}

func NewScheduler(schedule string, probes map[string]Probe, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		schedule: schedule,
		probes:   probes,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.schedule == "" || len(s.probes) == 0 {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.ProbeDependencies); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running probe to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) ProbeDependencies() {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		err := s.probes[name](ctx)
		cancel()

		metrics.SetDependencyUp(name, err == nil)
		if err != nil {
			s.log.Warn().Err(err).Str("dependency", name).Msg("dependency probe failed")
		}
	}
}
