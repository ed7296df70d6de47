package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/pubsub"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PollSubmissions runs one ingestion tick for a battle: for every
// participant, fetch their Codeforces history and store the submissions that
// target a battle problem, fall inside the battle window, carry a terminal
// verdict and have not been stored yet.
//
// One participant's failure rolls back only their batch; the others still
// land. A tick that fires concurrently with another (scheduled tick vs
// manual refresh) stays safe because the (battle, cf_id) unique key makes
// the second insert a no-op.
func (s *Service) PollSubmissions(ctx context.Context, battleID string) error {
	battle, err := s.battleByID(battleID)
	if err != nil {
		return err
	}
	if battle.Status == models.StatusPending {
		return fmt.Errorf("%w: battle has not started", apperr.ErrInvalidState)
	}

	problems, err := database.GetProblems(s.db, battleID)
	if err != nil {
		return err
	}
	participants, err := database.GetParticipants(s.db, battleID)
	if err != nil {
		return err
	}
	stored, err := database.GetStoredSubmissionIDs(s.db, battleID)
	if err != nil {
		return err
	}

	inBattle := make(map[string]bool, len(problems))
	for _, p := range problems {
		inBattle[problemKey(p.ContestID, p.ProblemIndex)] = true
	}

	endTime := battle.EndTime()
	total := 0

	for _, participant := range participants {
		if participant.User.Handle == "" {
			continue
		}

		history, err := s.cf.ListSubmissions(ctx, participant.User.Handle)
		if err != nil {
			zap.S().Warnf("failed to fetch submissions for %s in battle %s: %v",
				participant.User.Handle, battleID, err)
			continue
		}

		var batch []models.Submission
		for _, sub := range history {
			if !inBattle[problemKey(sub.Problem.ContestID, sub.Problem.Index)] {
				continue
			}
			submittedAt := time.Unix(sub.CreationTimeSeconds, 0).UTC()
			if submittedAt.Before(battle.StartTime) || submittedAt.After(endTime) {
				continue
			}
			if stored[sub.ID] {
				continue
			}
			if !sub.Terminal() {
				continue
			}
			batch = append(batch, models.Submission{
				ID:           uuid.NewString(),
				CFID:         sub.ID,
				BattleID:     battleID,
				UserID:       participant.UserID,
				ContestID:    sub.Problem.ContestID,
				ProblemIndex: sub.Problem.Index,
				Verdict:      sub.Verdict,
				PassedTests:  sub.PassedTestCount,
				SubmittedAt:  submittedAt,
			})
		}

		if len(batch) == 0 {
			continue
		}

		if err := database.CreateSubmissions(s.db, batch); err != nil {
			zap.S().Errorf("failed to insert %d submissions for %s in battle %s: %v",
				len(batch), participant.User.Handle, battleID, err)
			continue
		}

		for _, sub := range batch {
			stored[sub.CFID] = true
		}
		total += len(batch)
		zap.S().Infof("ingested %d new submissions for %s in battle %s",
			len(batch), participant.User.Handle, battleID)
	}

	if total > 0 {
		s.broker.Publish(pubsub.BattleTopic(battleID), pubsub.Event{
			Type: "submissions",
			Data: map[string]int{"new": total},
		})
	}
	return nil
}
