package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/pubsub"
	"github.com/codebattle/codebattle/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Join adds a user to a pending battle by its join token. Joining twice is a
// no-op that returns the existing membership's battle.
func (s *Service) Join(joinToken, userID string) (string, error) {
	battle, err := database.GetBattleByJoinToken(s.db, joinToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: battle not found or join token is invalid", apperr.ErrNotFound)
		}
		return "", err
	}
	if battle.Status != models.StatusPending {
		return "", fmt.Errorf("%w: you can only join battles that have not started yet", apperr.ErrInvalidState)
	}

	isParticipant, err := database.IsParticipant(s.db, battle.ID, userID)
	if err != nil {
		return "", err
	}
	if isParticipant {
		return battle.ID, nil
	}

	err = database.AddParticipant(s.db, &models.Participant{
		ID:       uuid.NewString(),
		BattleID: battle.ID,
		UserID:   userID,
	})
	if err != nil {
		return "", err
	}

	zap.S().Infof("user %s joined battle %s", userID, battle.ID)
	return battle.ID, nil
}

// Start is the manual trigger for the pending -> in_progress transition,
// used when the creator does not want to wait for the scheduled job or the
// scheduler backend is down. Creator-only.
func (s *Service) Start(ctx context.Context, battleID, userID string) error {
	battle, err := s.battleAsCreator(battleID, userID)
	if err != nil {
		return err
	}
	if battle.Status != models.StatusPending {
		return fmt.Errorf("%w: battle is already %s", apperr.ErrInvalidState, battle.Status)
	}
	if s.sched.InFlight(battleID, scheduler.KindStart) {
		return fmt.Errorf("%w: battle is starting, please wait", apperr.ErrConflict)
	}
	return s.startBattle(ctx, battleID)
}

// End is the manual trigger for the in_progress -> completed transition.
// Creator-only. Safe to race against the scheduled end job: the status CAS
// picks one winner and the loser sees an invalid-state error.
func (s *Service) End(ctx context.Context, battleID, userID string) error {
	if _, err := s.battleAsCreator(battleID, userID); err != nil {
		return err
	}
	return s.endBattle(ctx, battleID)
}

// Cancel deletes a battle that has not completed, together with its
// scheduled jobs. Creator-only.
func (s *Service) Cancel(ctx context.Context, battleID, userID string) error {
	battle, err := s.battleAsCreator(battleID, userID)
	if err != nil {
		return err
	}
	if battle.Status == models.StatusCompleted {
		return fmt.Errorf("%w: cannot cancel a completed battle", apperr.ErrInvalidState)
	}

	if err := database.DeleteBattle(s.db, battleID); err != nil {
		return err
	}

	if err := s.sched.CancelBattle(ctx, battleID); err != nil {
		zap.S().Warnf("failed to cancel scheduled jobs for battle %s: %v", battleID, err)
	}
	s.broker.CloseTopic(pubsub.BattleTopic(battleID))

	zap.S().Infof("battle %s cancelled by user %s", battleID, userID)
	return nil
}

// startBattle performs the actual transition: select problems, write them
// and flip the status in one transaction, then arm the poll and end jobs.
// Shared by the manual trigger and the scheduled start job, so the in-flight
// mark guards both paths against a concurrent double selection.
func (s *Service) startBattle(ctx context.Context, battleID string) error {
	if !s.sched.TryAcquire(battleID, scheduler.KindStart) {
		return fmt.Errorf("%w: battle is starting, please wait", apperr.ErrConflict)
	}
	defer s.sched.Release(battleID, scheduler.KindStart)

	battle, err := s.battleByID(battleID)
	if err != nil {
		return err
	}
	if battle.Status != models.StatusPending {
		return fmt.Errorf("%w: battle is already %s", apperr.ErrInvalidState, battle.Status)
	}

	participants, err := database.GetParticipants(s.db, battleID)
	if err != nil {
		return err
	}
	handles := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.User.Handle != "" {
			handles = append(handles, p.User.Handle)
		}
	}

	// Selection talks to Codeforces, so it stays outside the transaction.
	chosen, err := ChooseProblems(ctx, s.cf, battle.MinRating, battle.MaxRating, battle.ProblemCount, handles)
	if err != nil {
		return err
	}

	rows := make([]models.Problem, len(chosen))
	for i, p := range chosen {
		rows[i] = models.Problem{
			ID:           uuid.NewString(),
			BattleID:     battleID,
			ContestID:    p.ContestID,
			ProblemIndex: p.Index,
			Rating:       p.Rating,
			Position:     i + 1,
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		won, err := database.UpdateBattleStatusCAS(tx, battleID, models.StatusPending, models.StatusInProgress)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: battle is no longer pending", apperr.ErrInvalidState)
		}
		return database.CreateProblems(tx, rows)
	})
	if err != nil {
		return err
	}
	zap.S().Infof("battle %s started with %d problems", battleID, len(rows))

	if s.sched.Available() {
		if err := s.sched.ScheduleRecurring(ctx, s.pollInterval, scheduler.KindPoll, battleID); err != nil {
			zap.S().Warnf("failed to schedule polling for battle %s: %v", battleID, err)
		}
		if err := s.sched.ScheduleOnce(ctx, battle.EndTime(), scheduler.KindEnd, battleID); err != nil {
			zap.S().Warnf("failed to schedule end for battle %s, it must be ended manually: %v", battleID, err)
		}
	} else {
		zap.S().Warnf("scheduler unavailable, battle %s must be polled and ended manually", battleID)
	}

	s.broker.Publish(pubsub.BattleTopic(battleID), pubsub.Event{
		Type: "status",
		Data: models.StatusInProgress,
	})
	return nil
}

// endBattle flips in_progress -> completed and cancels the battle's
// remaining jobs. Idempotent under at-least-once job delivery: a second end
// attempt loses the CAS and reports an invalid state instead of corrupting
// anything.
func (s *Service) endBattle(ctx context.Context, battleID string) error {
	battle, err := s.battleByID(battleID)
	if err != nil {
		return err
	}
	if battle.Status != models.StatusInProgress {
		return fmt.Errorf("%w: battle is not in progress (status: %s)", apperr.ErrInvalidState, battle.Status)
	}

	won, err := database.UpdateBattleStatusCAS(s.db, battleID, models.StatusInProgress, models.StatusCompleted)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: battle already ended", apperr.ErrInvalidState)
	}
	zap.S().Infof("battle %s completed", battleID)

	if err := s.sched.CancelBattle(ctx, battleID); err != nil {
		zap.S().Warnf("failed to cancel scheduled jobs for battle %s: %v", battleID, err)
	}

	s.broker.Publish(pubsub.BattleTopic(battleID), pubsub.Event{
		Type: "status",
		Data: models.StatusCompleted,
	})
	s.broker.CloseTopic(pubsub.BattleTopic(battleID))
	return nil
}
