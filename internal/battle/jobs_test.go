package battle

import (
	"context"
	"testing"
	"time"

	"github.com/codebattle/codebattle/internal/codeforces"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/database/models"
	"github.com/codebattle/codebattle/internal/scheduler"
)

func TestRecoverSchedulesReArmsPending(t *testing.T) {
	sched := newFakeScheduler()
	svc, db := newTestService(t, nil, sched)
	creator := seedUser(t, db, "alice", "alice_cf")

	future := seedBattle(t, db, creator, models.StatusPending, time.Now().Add(time.Hour))
	overdue := seedBattle(t, db, creator, models.StatusPending, time.Now().Add(-time.Hour))

	if err := svc.RecoverSchedules(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	starts := sched.jobs(scheduler.KindStart)
	if len(starts) != 2 {
		t.Fatalf("expected 2 re-armed starts, got %d", len(starts))
	}
	for _, job := range starts {
		switch job.BattleID {
		case future.ID:
			if !job.RunAt.Equal(future.StartTime) {
				t.Errorf("future battle re-armed at %s, want %s", job.RunAt, future.StartTime)
			}
		case overdue.ID:
			// An overdue pending battle fires immediately, not in the past.
			if job.RunAt.Before(overdue.StartTime.Add(time.Minute)) {
				t.Errorf("overdue battle re-armed at %s, want roughly now", job.RunAt)
			}
		default:
			t.Errorf("unexpected start job for %s", job.BattleID)
		}
	}
}

func TestRecoverSchedulesReArmsRunning(t *testing.T) {
	sched := newFakeScheduler()
	svc, db := newTestService(t, nil, sched)
	creator := seedUser(t, db, "alice", "alice_cf")

	// Started an hour ago with two hours to run: still live.
	live := seedBattle(t, db, creator, models.StatusInProgress, time.Now().Add(-time.Hour))

	if err := svc.RecoverSchedules(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	polls := sched.jobs(scheduler.KindPoll)
	if len(polls) != 1 || polls[0].BattleID != live.ID {
		t.Fatalf("expected one re-armed poll for %s, got %+v", live.ID, polls)
	}
	ends := sched.jobs(scheduler.KindEnd)
	if len(ends) != 1 || !ends[0].RunAt.Equal(live.EndTime()) {
		t.Fatalf("expected one re-armed end at %s, got %+v", live.EndTime(), ends)
	}
}

func TestRecoverSchedulesClosesOverdueBattle(t *testing.T) {
	polled := false
	cf := &fakeContestClient{
		listSubmissions: func(ctx context.Context, handle string) ([]codeforces.Submission, error) {
			polled = true
			return nil, nil
		},
	}
	sched := newFakeScheduler()
	svc, db := newTestService(t, cf, sched)
	creator := seedUser(t, db, "alice", "alice_cf")

	// Its whole window elapsed while the process was down.
	overdue := seedBattle(t, db, creator, models.StatusInProgress, time.Now().Add(-3*time.Hour))

	if err := svc.RecoverSchedules(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if !polled {
		t.Error("an overdue battle should get a final submission poll")
	}
	stored, _ := database.GetBattle(db, overdue.ID)
	if stored.Status != models.StatusCompleted {
		t.Errorf("overdue battle should be completed, got %s", stored.Status)
	}
	if len(sched.jobs(scheduler.KindEnd)) != 0 {
		t.Error("a closed battle needs no end job")
	}
}

func TestRecoverSchedulesSkipsWhenBackendDown(t *testing.T) {
	sched := newFakeScheduler()
	sched.down = true
	svc, db := newTestService(t, nil, sched)
	creator := seedUser(t, db, "alice", "alice_cf")
	seedBattle(t, db, creator, models.StatusPending, time.Now().Add(time.Hour))

	if err := svc.RecoverSchedules(context.Background()); err != nil {
		t.Fatalf("recovery with the backend down should not error: %v", err)
	}
	if len(sched.scheduled) != 0 {
		t.Error("nothing should be armed while the backend is down")
	}
}
