package battle

import (
	"context"
	"errors"
	"time"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/scheduler"

	"go.uber.org/zap"
)

// RegisterHandlers binds the battle lifecycle to the scheduler's job kinds.
// Jobs are delivered at least once; every handler funnels into an operation
// guarded by the status CAS or the ingestion dedup key, so a re-delivered
// job degrades into a logged no-op.
func (s *Service) RegisterHandlers(sch *scheduler.Scheduler) {
	sch.Handle(scheduler.KindStart, s.handleStartJob)
	sch.Handle(scheduler.KindEnd, s.handleEndJob)
	sch.Handle(scheduler.KindPoll, s.handlePollJob)
}

func (s *Service) handleStartJob(ctx context.Context, battleID string) {
	if err := s.startBattle(ctx, battleID); err != nil {
		if errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrConflict) {
			zap.S().Infof("start job for battle %s skipped: %v", battleID, err)
			return
		}
		zap.S().Errorf("start job for battle %s failed: %v", battleID, err)
	}
}

func (s *Service) handleEndJob(ctx context.Context, battleID string) {
	if err := s.endBattle(ctx, battleID); err != nil {
		if errors.Is(err, apperr.ErrInvalidState) {
			zap.S().Infof("end job for battle %s skipped: %v", battleID, err)
			return
		}
		zap.S().Errorf("end job for battle %s failed: %v", battleID, err)
	}
}

func (s *Service) handlePollJob(ctx context.Context, battleID string) {
	if err := s.PollSubmissions(ctx, battleID); err != nil {
		// A missed tick is corrected by the next one.
		zap.S().Warnf("poll job for battle %s failed: %v", battleID, err)
	}
}

// RecoverSchedules re-arms the scheduled jobs for every live battle after a
// restart. Existing jobs for a battle are cancelled before re-arming so a
// job store that survived the restart does not end up with duplicates.
// Overdue transitions fire immediately.
func (s *Service) RecoverSchedules(ctx context.Context) error {
	if !s.sched.Available() {
		zap.S().Warn("scheduler unavailable, skipping schedule recovery; battles must be triggered manually")
		return nil
	}

	now := time.Now()

	pending, err := database.GetBattlesByStatus(s.db, models.StatusPending)
	if err != nil {
		return err
	}
	for _, battle := range pending {
		if err := s.sched.CancelBattle(ctx, battle.ID); err != nil {
			zap.S().Warnf("failed to clear jobs for battle %s: %v", battle.ID, err)
			continue
		}
		startAt := battle.StartTime
		if startAt.Before(now) {
			startAt = now
		}
		if err := s.sched.ScheduleOnce(ctx, startAt, scheduler.KindStart, battle.ID); err != nil {
			zap.S().Warnf("failed to re-arm start for battle %s: %v", battle.ID, err)
		}
	}

	running, err := database.GetBattlesByStatus(s.db, models.StatusInProgress)
	if err != nil {
		return err
	}
	for _, battle := range running {
		if err := s.sched.CancelBattle(ctx, battle.ID); err != nil {
			zap.S().Warnf("failed to clear jobs for battle %s: %v", battle.ID, err)
			continue
		}
		if !battle.EndTime().After(now) {
			// Ran past its end while we were down; do a final poll so the
			// last submissions land, then close it out.
			if err := s.PollSubmissions(ctx, battle.ID); err != nil {
				zap.S().Warnf("final poll for overdue battle %s failed: %v", battle.ID, err)
			}
			if err := s.endBattle(ctx, battle.ID); err != nil {
				zap.S().Warnf("failed to end overdue battle %s: %v", battle.ID, err)
			}
			continue
		}
		if err := s.sched.ScheduleRecurring(ctx, s.pollInterval, scheduler.KindPoll, battle.ID); err != nil {
			zap.S().Warnf("failed to re-arm polling for battle %s: %v", battle.ID, err)
		}
		if err := s.sched.ScheduleOnce(ctx, battle.EndTime(), scheduler.KindEnd, battle.ID); err != nil {
			zap.S().Warnf("failed to re-arm end for battle %s: %v", battle.ID, err)
		}
	}

	zap.S().Infof("schedule recovery done: %d pending, %d in-progress battles re-armed", len(pending), len(running))
	return nil
}
