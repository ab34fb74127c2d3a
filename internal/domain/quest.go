package domain

import "time"

// Cadence controls how often a quest resets.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceOneTime Cadence = "one-time"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceOneTime:
		return true
	}
	return false
}

// QuestRuleType discriminates the QuestRule union.
type QuestRuleType string

const (
	RuleEventCount    QuestRuleType = "event_count"
	RuleXPThreshold   QuestRuleType = "xp_threshold"
	RuleActionOnce    QuestRuleType = "action_once"
	RuleDepositAmount QuestRuleType = "deposit_amount"
	RuleCustom        QuestRuleType = "custom"
)

// QuestRule is the completion requirement of a quest. Only the fields
// relevant to Type are meaningful:
//
//	event_count     EventType, TargetCount
//	xp_threshold    TargetXP
//	action_once     EventType
//	deposit_amount  TargetAmount (token base units)
//	custom          Custom (progress driven externally)
type QuestRule struct {
	Type         QuestRuleType  `json:"type"`
	EventType    EventType      `json:"eventType,omitempty"`
	TargetCount  int64          `json:"targetCount,omitempty"`
	TargetXP     int64          `json:"targetXP,omitempty"`
	TargetAmount int64          `json:"targetAmount,omitempty"`
	Custom       map[string]any `json:"custom,omitempty"`
}

// Quest is a repeatable or one-time objective that pays RewardXP once per
// period when claimed.
type Quest struct {
	ID           string     `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string     `json:"name"          gorm:"type:varchar(120);not null;index"`
	Description  string     `json:"description"   gorm:"type:text;not null"`
	Cadence      Cadence    `json:"cadence"       gorm:"type:varchar(16);not null;index:idx_quests_cadence_active,priority:1"`
	StartAt      time.Time  `json:"start_at"      gorm:"not null"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	Rule         QuestRule  `json:"rules"         gorm:"type:text;serializer:json;not null"`
	RewardXP     int64      `json:"reward_xp"     gorm:"not null"`
	IsActive     bool       `json:"is_active"     gorm:"not null;index:idx_quests_cadence_active,priority:2"`
	Icon         string     `json:"icon,omitempty"       gorm:"type:varchar(32)"`
	Category     string     `json:"category,omitempty"   gorm:"type:varchar(32)"`
	Difficulty   string     `json:"difficulty,omitempty" gorm:"type:varchar(16)"`
	DisplayOrder int        `json:"display_order" gorm:"not null;default:0"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Quest.
func (Quest) TableName() string { return "quests" }

// LiveAt reports whether the quest is enabled and its window contains now.
func (q Quest) LiveAt(now time.Time) bool {
	if !q.IsActive || q.StartAt.After(now) {
		return false
	}
	return q.EndAt == nil || !q.EndAt.Before(now)
}

// Target returns the progress value at which the quest completes.
func (q Quest) Target() int64 {
	switch q.Rule.Type {
	case RuleEventCount:
		if q.Rule.TargetCount > 0 {
			return q.Rule.TargetCount
		}
	case RuleXPThreshold:
		return q.Rule.TargetXP
	case RuleDepositAmount:
		return q.Rule.TargetAmount
	}
	return 1
}

// OneTimePeriodKey is the period key of quests without a period.
const OneTimePeriodKey = "once"

// QuestProgress is the per-user, per-quest, per-period state row. The
// (UserID, QuestID, PeriodKey) triple is unique; once IsClaimed is set the row
// no longer changes.
type QuestProgress struct {
	ID            string     `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"                 gorm:"type:varchar(64);not null;uniqueIndex:ux_progress_user_quest_period,priority:1;index:idx_progress_user_claimed,priority:1"`
	QuestID       string     `json:"quest_id"                gorm:"type:char(36);not null;uniqueIndex:ux_progress_user_quest_period,priority:2;index"`
	PeriodKey     string     `json:"period_key"              gorm:"type:varchar(16);not null;uniqueIndex:ux_progress_user_quest_period,priority:3"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	ProgressValue int64      `json:"progress_value"          gorm:"not null;default:0"`
	IsCompleted   bool       `json:"is_completed"            gorm:"not null;default:false"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	IsClaimed     bool       `json:"is_claimed"              gorm:"not null;default:false;index:idx_progress_user_claimed,priority:2"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	LastEventID   *string    `json:"last_event_id,omitempty" gorm:"type:char(36)"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Quest Quest `json:"-" gorm:"foreignKey:QuestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for QuestProgress.
func (QuestProgress) TableName() string { return "quest_progress" }

// QuestState is the derived lifecycle position of a progress row.
type QuestState string

const (
	QuestNotStarted QuestState = "not_started"
	QuestInProgress QuestState = "in_progress"
	QuestCompleted  QuestState = "completed"
	QuestClaimed    QuestState = "claimed"
)

// State derives the lifecycle state from the row flags.
func (p QuestProgress) State() QuestState {
	switch {
	case p.IsClaimed:
		return QuestClaimed
	case p.IsCompleted:
		return QuestCompleted
	case p.ProgressValue > 0:
		return QuestInProgress
	default:
		return QuestNotStarted
	}
}
