package battle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codebattle/codebattle/internal/codeforces"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/pubsub"
	"github.com/codebattle/codebattle/internal/scheduler"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens a fresh in-memory database named after the test so parallel
// tests never share state.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeContestClient struct {
	listSubmissions func(ctx context.Context, handle string) ([]codeforces.Submission, error)
	listProblems    func(ctx context.Context, tags []string) (*codeforces.ProblemSet, error)
}

func (f *fakeContestClient) ListSubmissions(ctx context.Context, handle string) ([]codeforces.Submission, error) {
	if f.listSubmissions == nil {
		return nil, nil
	}
	return f.listSubmissions(ctx, handle)
}

func (f *fakeContestClient) ListProblems(ctx context.Context, tags []string) (*codeforces.ProblemSet, error) {
	if f.listProblems == nil {
		return &codeforces.ProblemSet{}, nil
	}
	return f.listProblems(ctx, tags)
}

type scheduledJob struct {
	Kind     scheduler.JobKind
	BattleID string
	RunAt    time.Time
	Every    time.Duration
}

// fakeScheduler records scheduling calls and lets tests flip availability and
// hold the in-flight mark.
type fakeScheduler struct {
	mu        sync.Mutex
	down      bool
	scheduled []scheduledJob
	cancelled []string
	inFlight  map[string]bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{inFlight: make(map[string]bool)}
}

func (f *fakeScheduler) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down
}

func (f *fakeScheduler) ScheduleOnce(ctx context.Context, runAt time.Time, kind scheduler.JobKind, battleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledJob{Kind: kind, BattleID: battleID, RunAt: runAt})
	return nil
}

func (f *fakeScheduler) ScheduleRecurring(ctx context.Context, every time.Duration, kind scheduler.JobKind, battleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledJob{Kind: kind, BattleID: battleID, Every: every})
	return nil
}

func (f *fakeScheduler) CancelBattle(ctx context.Context, battleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, battleID)
	return nil
}

func (f *fakeScheduler) TryAcquire(battleID string, kind scheduler.JobKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(kind) + "/" + battleID
	if f.inFlight[key] {
		return false
	}
	f.inFlight[key] = true
	return true
}

func (f *fakeScheduler) Release(battleID string, kind scheduler.JobKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, string(kind)+"/"+battleID)
}

func (f *fakeScheduler) InFlight(battleID string, kind scheduler.JobKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[string(kind)+"/"+battleID]
}

func (f *fakeScheduler) jobs(kind scheduler.JobKind) []scheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []scheduledJob
	for _, j := range f.scheduled {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

func newTestService(t *testing.T, cf ContestClient, sched JobScheduler) (*Service, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	if cf == nil {
		cf = &fakeContestClient{}
	}
	if sched == nil {
		sched = newFakeScheduler()
	}
	return NewService(db, cf, sched, pubsub.NewBroker(), time.Minute), db
}

func seedUser(t *testing.T, db *gorm.DB, username, handle string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.NewString(),
		Username: username,
		Handle:   handle,
	}
	if err := database.CreateUser(db, user); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func seedBattle(t *testing.T, db *gorm.DB, creator *models.User, status models.BattleStatus, startTime time.Time) *models.Battle {
	t.Helper()
	b := &models.Battle{
		ID:           uuid.NewString(),
		CreatedBy:    creator.ID,
		Title:        "test battle",
		Status:       status,
		StartTime:    startTime,
		DurationMin:  120,
		MinRating:    800,
		MaxRating:    1200,
		ProblemCount: 3,
		JoinToken:    uuid.NewString(),
	}
	if err := database.CreateBattle(db, b); err != nil {
		t.Fatalf("seed battle: %v", err)
	}
	seedParticipant(t, db, b.ID, creator.ID)
	return b
}

func seedParticipant(t *testing.T, db *gorm.DB, battleID, userID string) {
	t.Helper()
	err := database.AddParticipant(db, &models.Participant{
		ID:       uuid.NewString(),
		BattleID: battleID,
		UserID:   userID,
	})
	if err != nil {
		t.Fatalf("seed participant: %v", err)
	}
}

func seedProblem(t *testing.T, db *gorm.DB, battleID string, contestID int, index string, position int) *models.Problem {
	t.Helper()
	p := models.Problem{
		ID:           uuid.NewString(),
		BattleID:     battleID,
		ContestID:    contestID,
		ProblemIndex: index,
		Rating:       1000,
		Position:     position,
	}
	if err := database.CreateProblems(db, []models.Problem{p}); err != nil {
		t.Fatalf("seed problem: %v", err)
	}
	return &p
}

// catalog builds a problem set of count PROGRAMMING problems at the given
// rating.
func catalog(count, rating int) *codeforces.ProblemSet {
	set := &codeforces.ProblemSet{}
	for i := 0; i < count; i++ {
		set.Problems = append(set.Problems, codeforces.Problem{
			ContestID: 1000 + i,
			Index:     "A",
			Name:      fmt.Sprintf("Problem %d", i),
			Type:      "PROGRAMMING",
			Rating:    rating,
		})
	}
	return set
}
