// Package jobs runs the periodic background work: config refresh on every
// instance, opening the daily settlement round and re-sending queued payouts.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type ConfigRefresher interface {
	RefreshConfig(ctx context.Context) (bool, error)
}

type RoundOpener interface {
	OpenToday(ctx context.Context) error
}

type PayoutResender interface {
	ResendPayouts(ctx context.Context) (int, error)
}

// Specs holds one cron expression per job.
type Specs struct {
	ConfigRefresh string
	RoundOpen     string
	PayoutResend  string
}

type Scheduler struct {
	cron      *cron.Cron
	refresher ConfigRefresher
	opener    RoundOpener
	resender  PayoutResender
	logger    logrus.FieldLogger
}

func NewScheduler(loc *time.Location, refresher ConfigRefresher, opener RoundOpener, resender PayoutResender, logger logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		refresher: refresher,
		opener:    opener,
		resender:  resender,
		logger:    logger.WithField("component", "scheduler"),
	}
}

// Start registers the jobs and starts the cron loop. Today's round is
// opened immediately so a fresh deployment does not wait for the schedule.
func (s *Scheduler) Start(ctx context.Context, specs Specs) error {
	if _, err := s.cron.AddFunc(specs.ConfigRefresh, func() { s.refreshConfig(ctx) }); err != nil {
		return fmt.Errorf("schedule config refresh %q: %w", specs.ConfigRefresh, err)
	}
	if _, err := s.cron.AddFunc(specs.RoundOpen, func() { s.openRound(ctx) }); err != nil {
		return fmt.Errorf("schedule round open %q: %w", specs.RoundOpen, err)
	}
	if _, err := s.cron.AddFunc(specs.PayoutResend, func() { s.resendPayouts(ctx) }); err != nil {
		return fmt.Errorf("schedule payout resend %q: %w", specs.PayoutResend, err)
	}
	s.openRound(ctx)
	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"config_refresh": specs.ConfigRefresh,
		"round_open":     specs.RoundOpen,
		"payout_resend":  specs.PayoutResend,
	}).Info("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) refreshConfig(ctx context.Context) {
	swapped, err := s.refresher.RefreshConfig(ctx)
	if err != nil {
		s.logger.WithError(err).Error("config refresh failed")
		return
	}
	if swapped {
		s.logger.Info("economy config refreshed")
	}
}

func (s *Scheduler) openRound(ctx context.Context) {
	if err := s.opener.OpenToday(ctx); err != nil {
		s.logger.WithError(err).Error("round open failed")
	}
}

func (s *Scheduler) resendPayouts(ctx context.Context) {
	sent, err := s.resender.ResendPayouts(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("sent", sent).Warn("payout resend incomplete")
	}
}
