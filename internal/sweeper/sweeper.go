// Package sweeper expires overdue verification requests on a schedule.
// Expiry is also checked lazily on submission, so the sweep only exists to
// settle requests the user abandoned and to send them the expiry
// notification.
package sweeper

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer is the slice of the service layer the sweeper needs.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Config controls the sweep schedule.
type Config struct {
	// Schedule is a cron expression. Defaults to every ten minutes.
	Schedule string
}

// Sweeper runs ExpireOverdue on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	expirer Expirer
	logger  *zap.Logger
}

// New builds a Sweeper. The returned sweeper does nothing until Start.
func New(expirer Expirer, cfg Config, logger *zap.Logger) (*Sweeper, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	s := &Sweeper{
		cron:    cron.New(),
		expirer: expirer,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for any running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	n, err := s.expirer.ExpireOverdue(context.Background())
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired overdue requests", zap.Int("count", n))
	}
}
