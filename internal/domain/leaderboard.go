package domain

import "time"

// Period selects the aggregation window of a leaderboard.
type Period string

const (
	PeriodAllTime Period = "all-time"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
)

// Periods lists every leaderboard period in generation order.
var Periods = []Period{PeriodAllTime, PeriodDaily, PeriodWeekly}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case PeriodAllTime, PeriodDaily, PeriodWeekly:
		return true
	}
	return false
}

// SnapshotStatus is the generation state of a LeaderboardSnapshot.
type SnapshotStatus string

const (
	SnapshotGenerating SnapshotStatus = "generating"
	SnapshotCompleted  SnapshotStatus = "completed"
	SnapshotFailed     SnapshotStatus = "failed"
)

// LeaderboardSnapshot is one immutable ranking of a period. Readers only ever
// see snapshots in SnapshotCompleted.
type LeaderboardSnapshot struct {
	ID           string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	Period       Period         `json:"period"                  gorm:"type:varchar(16);not null;index:idx_snapshots_latest,priority:1"`
	WindowStart  time.Time      `json:"window_start"            gorm:"not null"`
	WindowEnd    time.Time      `json:"window_end"              gorm:"not null"`
	GeneratedAt  time.Time      `json:"generated_at"            gorm:"not null;index:idx_snapshots_latest,priority:3"`
	Status       SnapshotStatus `json:"status"                  gorm:"type:varchar(16);not null;index:idx_snapshots_latest,priority:2"`
	TotalUsers   int            `json:"total_users"             gorm:"not null;default:0"`
	TopScore     int64          `json:"top_score"               gorm:"not null;default:0"`
	AverageScore float64        `json:"average_score"           gorm:"not null;default:0"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"type:varchar(255)"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the database table name for LeaderboardSnapshot.
func (LeaderboardSnapshot) TableName() string { return "leaderboard_snapshots" }

// LeaderboardRow is a ranked user inside one snapshot.
type LeaderboardRow struct {
	SnapshotID    string `json:"snapshot_id"              gorm:"type:char(36);primaryKey;index:idx_rows_snapshot_rank,priority:1"`
	UserID        string `json:"user_id"                  gorm:"type:varchar(64);primaryKey"`
	Rank          int    `json:"rank"                     gorm:"not null;index:idx_rows_snapshot_rank,priority:2"`
	Score         int64  `json:"score"                    gorm:"not null"`
	WalletAddress string `json:"wallet_address,omitempty" gorm:"type:varchar(42)"`

	Snapshot LeaderboardSnapshot `json:"-" gorm:"foreignKey:SnapshotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for LeaderboardRow.
func (LeaderboardRow) TableName() string { return "leaderboard_rows" }
