package models

import (
	"time"

	"gorm.io/gorm"
)

type BattleStatus string

const (
	StatusPending    BattleStatus = "pending"
	StatusInProgress BattleStatus = "in_progress"
	StatusCompleted  BattleStatus = "completed"
)

// VerdictOK is the only accepting verdict; every other terminal verdict
// counts as a rejection.
const VerdictOK = "OK"

type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OIDCSub      *string `gorm:"uniqueIndex" json:"-"`
	Username     string  `gorm:"uniqueIndex" json:"username"`
	PasswordHash string  `json:"-"`
	Handle       string  `gorm:"index" json:"handle"` // Codeforces handle
	AvatarURL    string  `json:"avatar_url"`
	Rating       int     `json:"rating"`
}

type Battle struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time
	UpdatedAt time.Time

	CreatedBy string `gorm:"index" json:"created_by"`

	Title        string       `json:"title"`
	Status       BattleStatus `gorm:"index" json:"status"`
	StartTime    time.Time    `json:"start_time"`
	DurationMin  int          `json:"duration_min"`
	MinRating    int          `json:"min_rating"`
	MaxRating    int          `json:"max_rating"`
	ProblemCount int          `json:"problem_count"`
	JoinToken    string       `gorm:"uniqueIndex" json:"join_token"`
}

// EndTime is the instant after which submissions no longer count.
func (b *Battle) EndTime() time.Time {
	return b.StartTime.Add(time.Duration(b.DurationMin) * time.Minute)
}

type Participant struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time

	BattleID string `gorm:"uniqueIndex:idx_battle_user" json:"battle_id"`
	UserID   string `gorm:"uniqueIndex:idx_battle_user" json:"user_id"`
	User     User   `json:"user"`
}

type Problem struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time

	BattleID     string `gorm:"uniqueIndex:idx_battle_problem" json:"battle_id"`
	ContestID    int    `gorm:"uniqueIndex:idx_battle_problem" json:"contest_id"`
	ProblemIndex string `gorm:"uniqueIndex:idx_battle_problem" json:"index"`
	Rating       int    `json:"rating"`
	// Position fixes the P1/P2/... ordinal at selection time.
	Position int `json:"position"`
}

type Submission struct {
	ID        string `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time

	// CFID is the external submission id, unique within a battle.
	CFID     int64  `gorm:"uniqueIndex:idx_battle_cfid" json:"cf_id"`
	BattleID string `gorm:"uniqueIndex:idx_battle_cfid;index" json:"battle_id"`
	UserID   string `gorm:"index" json:"user_id"`

	ContestID    int       `json:"contest_id"`
	ProblemIndex string    `json:"index"`
	Verdict      string    `json:"verdict"`
	PassedTests  int       `json:"passed_tests"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
