package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobKind string

const (
	KindStart JobKind = "battle:start"
	KindEnd   JobKind = "battle:end"
	KindPoll  JobKind = "battle:poll-submissions"
)

const (
	dueSetKey      = "codebattle:jobs"
	jobKeyPrefix   = "codebattle:job:"
	groupKeyPrefix = "codebattle:battle:"
)

// Job is the unit the scheduler persists. Every > 0 marks a recurring job
// that is re-armed after each delivery.
type Job struct {
	ID       string        `json:"id"`
	Kind     JobKind       `json:"kind"`
	BattleID string        `json:"battle_id"`
	RunAt    time.Time     `json:"run_at"`
	Every    time.Duration `json:"every"`
}

// Handler receives the battle a fired job belongs to. Delivery is
// at-least-once; handlers must tolerate re-delivery.
type Handler func(ctx context.Context, battleID string)

// Scheduler stores due jobs in Redis so they survive restarts, and fires
// them from a single polling loop. When the backend is unreachable the
// scheduler degrades instead of failing callers: scheduling returns an
// error the caller logs, Available() turns false, and battles fall back to
// manual triggering.
type Scheduler struct {
	rdb          *redis.Client
	processEvery time.Duration
	probeEvery   time.Duration

	mu       sync.RWMutex
	handlers map[JobKind]Handler

	available atomic.Bool
	inFlight  sync.Map // "<battleID>/<kind>" -> struct{}
}

func New(rdb *redis.Client, processEvery, probeEvery time.Duration) *Scheduler {
	s := &Scheduler{
		rdb:          rdb,
		processEvery: processEvery,
		probeEvery:   probeEvery,
		handlers:     make(map[JobKind]Handler),
	}
	return s
}

// Handle registers the handler for a job kind. Must be called before Run.
func (s *Scheduler) Handle(kind JobKind, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// Available reports the last observed health of the job store.
func (s *Scheduler) Available() bool {
	return s.available.Load()
}

// Probe pings the backend once and updates the availability flag.
func (s *Scheduler) Probe(ctx context.Context) bool {
	err := s.rdb.Ping(ctx).Err()
	if err != nil {
		if s.available.Swap(false) {
			zap.S().Warnf("scheduler backend unreachable: %v", err)
		}
		return false
	}
	if !s.available.Swap(true) {
		zap.S().Info("scheduler backend reachable")
	}
	return true
}

// ScheduleOnce arms a one-shot job at the given wall-clock time.
func (s *Scheduler) ScheduleOnce(ctx context.Context, runAt time.Time, kind JobKind, battleID string) error {
	return s.add(ctx, Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		BattleID: battleID,
		RunAt:    runAt,
	})
}

// ScheduleRecurring arms a job that re-fires every interval until the
// battle's jobs are cancelled. The first delivery happens one interval from
// now.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, every time.Duration, kind JobKind, battleID string) error {
	return s.add(ctx, Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		BattleID: battleID,
		RunAt:    time.Now().Add(every),
		Every:    every,
	})
}

func (s *Scheduler) add(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, 0)
	pipe.ZAdd(ctx, dueSetKey, redis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: job.ID,
	})
	pipe.SAdd(ctx, groupKeyPrefix+job.BattleID, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.available.Store(false)
		return err
	}

	zap.S().Infof("scheduled %s for battle %s at %s", job.Kind, job.BattleID, job.RunAt.Format(time.RFC3339))
	return nil
}

// CancelBattle removes every outstanding job belonging to a battle. The
// per-battle group set acts as the cancellation handle, so no payload
// introspection is needed.
func (s *Scheduler) CancelBattle(ctx context.Context, battleID string) error {
	groupKey := groupKeyPrefix + battleID
	ids, err := s.rdb.SMembers(ctx, groupKey).Result()
	if err != nil {
		s.available.Store(false)
		return err
	}

	pipe := s.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, dueSetKey, id)
		pipe.Del(ctx, jobKeyPrefix+id)
	}
	pipe.Del(ctx, groupKey)
	if _, err := pipe.Exec(ctx); err != nil {
		s.available.Store(false)
		return err
	}

	zap.S().Infof("cancelled %d scheduled jobs for battle %s", len(ids), battleID)
	return nil
}

// TryAcquire marks a (battle, kind) pair as in flight. Callers use it to
// detect a concurrent start attempt before doing any work.
func (s *Scheduler) TryAcquire(battleID string, kind JobKind) bool {
	_, loaded := s.inFlight.LoadOrStore(string(kind)+"/"+battleID, struct{}{})
	return !loaded
}

// Release clears the in-flight mark set by TryAcquire.
func (s *Scheduler) Release(battleID string, kind JobKind) {
	s.inFlight.Delete(string(kind) + "/" + battleID)
}

// InFlight reports whether a job of this kind is currently running for the
// battle.
func (s *Scheduler) InFlight(battleID string, kind JobKind) bool {
	_, ok := s.inFlight.Load(string(kind) + "/" + battleID)
	return ok
}

// Run drives the polling loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Probe(ctx)

	ticker := time.NewTicker(s.processEvery)
	defer ticker.Stop()
	probe := time.NewTicker(s.probeEvery)
	defer probe.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-probe.C:
			s.Probe(ctx)
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				if s.available.Swap(false) {
					zap.S().Warnf("scheduler tick failed: %v", err)
				}
			}
		}
	}
}

// Tick claims and dispatches every job that is due. Exported so tests and
// recovery paths can drive the scheduler without the loop.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now()
	ids, err := s.rdb.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   formatMilli(now),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		// ZRem doubles as the claim: whoever removes the member owns the job.
		removed, err := s.rdb.ZRem(ctx, dueSetKey, id).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}

		data, err := s.rdb.Get(ctx, jobKeyPrefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // cancelled between claim and fetch
			}
			return err
		}

		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			zap.S().Errorf("dropping undecodable job %s: %v", id, err)
			s.rdb.Del(ctx, jobKeyPrefix+id)
			continue
		}

		if job.Every > 0 {
			s.rdb.ZAdd(ctx, dueSetKey, redis.Z{
				Score:  float64(now.Add(job.Every).UnixMilli()),
				Member: job.ID,
			})
		} else {
			s.rdb.Del(ctx, jobKeyPrefix+job.ID)
			s.rdb.SRem(ctx, groupKeyPrefix+job.BattleID, job.ID)
		}

		s.dispatch(ctx, job)
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) {
	s.mu.RLock()
	handler, ok := s.handlers[job.Kind]
	s.mu.RUnlock()
	if !ok {
		zap.S().Warnf("no handler registered for job kind %s", job.Kind)
		return
	}

	zap.S().Infof("firing %s for battle %s", job.Kind, job.BattleID)
	go handler(ctx, job.BattleID)
}

func formatMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
