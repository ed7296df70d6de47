package battle

import (
	"context"
	"fmt"
	"time"

	"github.com/codebattle/codebattle/internal/apperr"
	"github.com/codebattle/codebattle/internal/codeforces"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/pubsub"
	"github.com/codebattle/codebattle/internal/scheduler"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ContestClient is the slice of the Codeforces API the battle core consumes.
type ContestClient interface {
	ListSubmissions(ctx context.Context, handle string) ([]codeforces.Submission, error)
	ListProblems(ctx context.Context, tags []string) (*codeforces.ProblemSet, error)
}

// JobScheduler is what the battle core needs from the scheduler. Kept as an
// interface so tests can inject an unavailable or in-flight backend
// deterministically.
type JobScheduler interface {
	Available() bool
	ScheduleOnce(ctx context.Context, runAt time.Time, kind scheduler.JobKind, battleID string) error
	ScheduleRecurring(ctx context.Context, every time.Duration, kind scheduler.JobKind, battleID string) error
	CancelBattle(ctx context.Context, battleID string) error
	TryAcquire(battleID string, kind scheduler.JobKind) bool
	Release(battleID string, kind scheduler.JobKind)
	InFlight(battleID string, kind scheduler.JobKind) bool
}

// Service owns the battle lifecycle: creation, membership, the status state
// machine, submission polling and standings.
type Service struct {
	db           *gorm.DB
	cf           ContestClient
	sched        JobScheduler
	broker       *pubsub.Broker
	pollInterval time.Duration
}

func NewService(db *gorm.DB, cf ContestClient, sched JobScheduler, broker *pubsub.Broker, pollInterval time.Duration) *Service {
	return &Service{
		db:           db,
		cf:           cf,
		sched:        sched,
		broker:       broker,
		pollInterval: pollInterval,
	}
}

type CreateRequest struct {
	Title        string    `json:"title"`
	StartTime    time.Time `json:"start_time"`
	DurationMin  int       `json:"duration_min"`
	MinRating    int       `json:"min_rating"`
	MaxRating    int       `json:"max_rating"`
	ProblemCount int       `json:"problem_count"`
}

func (r *CreateRequest) validate(now time.Time) error {
	switch {
	case r.Title == "":
		return fmt.Errorf("%w: title is required", apperr.ErrValidation)
	case r.StartTime.Before(now.Add(30 * time.Second)):
		return fmt.Errorf("%w: start time must be at least 30 seconds in the future", apperr.ErrValidation)
	case r.DurationMin <= 10 || r.DurationMin >= 300:
		return fmt.Errorf("%w: duration must be more than 10 minutes and less than 300 minutes", apperr.ErrValidation)
	case r.MinRating < 0 || r.MaxRating < 0:
		return fmt.Errorf("%w: ratings must be non-negative", apperr.ErrValidation)
	case r.MinRating > r.MaxRating-100:
		return fmt.Errorf("%w: rating range should be at least 100 rating points", apperr.ErrValidation)
	case r.ProblemCount <= 2 || r.ProblemCount > 10:
		return fmt.Errorf("%w: problem count must be between 3 and 10", apperr.ErrValidation)
	}
	return nil
}

// Create validates the request, stores the battle with its creator as first
// participant, and arms the one-shot start job. A down scheduler backend is
// not fatal: the battle is created and the creator starts it manually.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (string, error) {
	if err := req.validate(time.Now()); err != nil {
		return "", err
	}

	battle := models.Battle{
		ID:           uuid.NewString(),
		CreatedBy:    userID,
		Title:        req.Title,
		Status:       models.StatusPending,
		StartTime:    req.StartTime.UTC(),
		DurationMin:  req.DurationMin,
		MinRating:    req.MinRating,
		MaxRating:    req.MaxRating,
		ProblemCount: req.ProblemCount,
		JoinToken:    uuid.NewString(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := database.CreateBattle(tx, &battle); err != nil {
			return err
		}
		return database.AddParticipant(tx, &models.Participant{
			ID:       uuid.NewString(),
			BattleID: battle.ID,
			UserID:   userID,
		})
	})
	if err != nil {
		return "", err
	}

	if s.sched.Available() {
		if err := s.sched.ScheduleOnce(ctx, battle.StartTime, scheduler.KindStart, battle.ID); err != nil {
			zap.S().Warnf("failed to schedule start for battle %s, it must be started manually: %v", battle.ID, err)
		}
	} else {
		zap.S().Warnf("scheduler unavailable, battle %s must be started manually", battle.ID)
	}

	zap.S().Infof("battle %s created by user %s, starts at %s", battle.ID, userID, battle.StartTime.Format(time.RFC3339))
	return battle.ID, nil
}

// GetBattle returns a battle the user is allowed to view.
func (s *Service) GetBattle(battleID, userID string) (*models.Battle, error) {
	return s.battleWithAccess(battleID, userID)
}

// GetUserBattles lists every battle the user participates in.
func (s *Service) GetUserBattles(userID string) ([]models.Battle, error) {
	return database.GetBattlesByParticipant(s.db, userID)
}

// GetParticipants lists a battle's participants for a viewer with access.
func (s *Service) GetParticipants(battleID, userID string) ([]models.Participant, error) {
	if _, err := s.battleWithAccess(battleID, userID); err != nil {
		return nil, err
	}
	return database.GetParticipants(s.db, battleID)
}

// GetProblems returns the selected problem set in position order. Hidden
// while the battle is pending so an unstarted battle is not mistaken for one
// with no problems.
func (s *Service) GetProblems(battleID, userID string) ([]models.Problem, error) {
	battle, err := s.battleWithAccess(battleID, userID)
	if err != nil {
		return nil, err
	}
	if battle.Status == models.StatusPending {
		return nil, fmt.Errorf("%w: problems are only available after the battle starts", apperr.ErrInvalidState)
	}
	return database.GetProblems(s.db, battleID)
}

// GetStandings computes the current ranking fresh from stored data.
func (s *Service) GetStandings(battleID, userID string) ([]Row, error) {
	battle, err := s.battleWithAccess(battleID, userID)
	if err != nil {
		return nil, err
	}
	if battle.Status == models.StatusPending {
		return nil, fmt.Errorf("%w: standings are only available after the battle starts", apperr.ErrInvalidState)
	}

	problems, err := database.GetProblems(s.db, battleID)
	if err != nil {
		return nil, err
	}
	participants, err := database.GetParticipants(s.db, battleID)
	if err != nil {
		return nil, err
	}
	submissions, err := database.GetSubmissions(s.db, battleID)
	if err != nil {
		return nil, err
	}

	return Compute(problems, submissions, participants, battle.StartTime), nil
}

// GetSubmissions lists a battle's stored submissions in time order.
func (s *Service) GetSubmissions(battleID, userID string) ([]models.Submission, error) {
	if _, err := s.battleWithAccess(battleID, userID); err != nil {
		return nil, err
	}
	return database.GetSubmissions(s.db, battleID)
}

// RefreshSubmissions triggers a poll tick on demand. The poll itself runs in
// the background; its failures are corrected by the next scheduled tick.
func (s *Service) RefreshSubmissions(battleID, userID string) error {
	battle, err := s.battleWithAccess(battleID, userID)
	if err != nil {
		return err
	}
	if battle.Status != models.StatusInProgress {
		return fmt.Errorf("%w: submissions can only be refreshed during an active battle", apperr.ErrInvalidState)
	}

	go func() {
		if err := s.PollSubmissions(context.Background(), battleID); err != nil {
			zap.S().Warnf("manual refresh for battle %s failed: %v", battleID, err)
		}
	}()
	return nil
}
