package schedule

import (
	"fmt"

	"StakeVault/internal/accesskey"
	"StakeVault/internal/observability"
	"StakeVault/internal/rewards"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the periodic maintenance jobs: releasing accrued rewards
// to the vault and sweeping forfeited collateral. Both jobs are safe to
// fire at any time; they no-op when there is nothing to move.
type Scheduler struct {
	cron      *cron.Cron
	scheduler *rewards.Scheduler
	registry  *accesskey.Registry
	log       zerolog.Logger
}

func New(sched *rewards.Scheduler, registry *accesskey.Registry) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		scheduler: sched,
		registry:  registry,
		log:       observability.NewLogger("schedule"),
	}
}

// RegisterAll registers the issue and sweep jobs with the given cron specs.
func (s *Scheduler) RegisterAll(issueCron, sweepCron string) error {
	if _, err := s.cron.AddFunc(issueCron, s.issueTask); err != nil {
		return fmt.Errorf("register issue task: %w", err)
	}
	if _, err := s.cron.AddFunc(sweepCron, s.sweepTask); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) issueTask() {
	if !s.scheduler.Started() {
		return
	}
	amount, err := s.scheduler.IssueRewards()
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled reward issue failed")
		return
	}
	if amount > 0 {
		s.log.Info().Int64("amount", amount).Msg("scheduled reward issue")
	}
}

func (s *Scheduler) sweepTask() {
	amount, err := s.registry.Sweep()
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	if amount > 0 {
		s.log.Info().Int64("amount", amount).Msg("scheduled sweep")
	}
}
