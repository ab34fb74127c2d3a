// Package domain defines the persistence models for users, activity events,
// the XP ledger, quests, referrals and leaderboard snapshots. These types are
// mapped with GORM and shared across the repository and service layers.
//
// All timestamps are stored in UTC. XP amounts are signed 64-bit integers.
package domain

import "time"

// EventType enumerates the kinds of user activity accepted by the event store.
type EventType string

const (
	EventConnectWallet    EventType = "connect_wallet"
	EventDeposit          EventType = "deposit"
	EventSupply           EventType = "supply"
	EventBorrow           EventType = "borrow"
	EventSwap             EventType = "swap"
	EventClaimFaucet      EventType = "claim_faucet"
	EventCompleteQuest    EventType = "complete_quest"
	EventReferralVerified EventType = "referral_verified"
	EventSelectStrategy   EventType = "select_strategy"
	EventClaimReward      EventType = "claim_reward"
	EventOther            EventType = "other"
)

var eventTypes = map[EventType]struct{}{
	EventConnectWallet: {}, EventDeposit: {}, EventSupply: {}, EventBorrow: {},
	EventSwap: {}, EventClaimFaucet: {}, EventCompleteQuest: {}, EventReferralVerified: {},
	EventSelectStrategy: {}, EventClaimReward: {}, EventOther: {},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

// EventStatus is the processing state of an Event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventVerified  EventStatus = "verified"
	EventProcessed EventStatus = "processed"
	EventFailed    EventStatus = "failed"
	EventRejected  EventStatus = "rejected"
)

// User is the local projection of an authenticated account. Identity itself
// is owned by the upstream auth layer; this row carries the referral code,
// the active flag used by leaderboards and a cached XP total.
//
// TotalXP is a cache maintained alongside ledger inserts. The ledger sum is
// authoritative.
type User struct {
	ID            string    `json:"id"             gorm:"type:varchar(64);primaryKey"`
	WalletAddress string    `json:"wallet_address" gorm:"type:varchar(42);index"`
	ReferralCode  string    `json:"referral_code"  gorm:"type:varchar(16);not null;uniqueIndex"`
	IsActive      bool      `json:"is_active"      gorm:"not null;index"`
	TotalXP       int64     `json:"total_xp"       gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// EventMetadata is the typed payload attached to an Event. On-chain events
// carry TxHash; Amount is expressed in token base units.
type EventMetadata struct {
	TxHash          string         `json:"txHash,omitempty"`
	ChainID         int64          `json:"chainId,omitempty"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	BlockNumber     int64          `json:"blockNumber,omitempty"`
	Amount          int64          `json:"amount,omitempty"`
	TokenAddress    string         `json:"tokenAddress,omitempty"`
	TokenSymbol     string         `json:"tokenSymbol,omitempty"`
	Protocol        string         `json:"protocol,omitempty"`
	QuestID         string         `json:"questId,omitempty"`
	ReferralID      string         `json:"referralId,omitempty"`
	OccurredAt      *time.Time     `json:"occurredAt,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Event is a single unit of user activity. DedupKey is globally unique and is
// the only mechanism preventing the same activity from being processed twice.
type Event struct {
	ID           string        `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserID       string        `json:"user_id"                 gorm:"type:varchar(64);not null;index:idx_events_user_type,priority:1;index:idx_events_user_time,priority:1"`
	Type         EventType     `json:"type"                    gorm:"type:varchar(32);not null;index:idx_events_user_type,priority:2"`
	DedupKey     string        `json:"dedup_key"               gorm:"type:varchar(255);not null;uniqueIndex"`
	TxHash       string        `json:"tx_hash,omitempty"       gorm:"type:varchar(66);index"`
	Metadata     EventMetadata `json:"metadata"                gorm:"type:text;serializer:json"`
	OccurredAt   time.Time     `json:"occurred_at"             gorm:"not null;index:idx_events_user_time,priority:2"`
	Status       EventStatus   `json:"status"                  gorm:"type:varchar(16);not null;default:'pending';index"`
	VerifiedAt   *time.Time    `json:"verified_at,omitempty"`
	ProcessedAt  *time.Time    `json:"processed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"type:varchar(255)"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }

// LedgerReason tags why a ledger entry was written. Event-driven awards use
// the event type as their reason.
type LedgerReason string

const (
	ReasonCompleteQuest   LedgerReason = "complete_quest"
	ReasonReferralInviter LedgerReason = "referral_inviter"
	ReasonReferralInvitee LedgerReason = "referral_invitee"
	ReasonAdminAdjustment LedgerReason = "admin_adjustment"
)

// LedgerEntry is one signed XP delta. Entries are append-only.
//
// SourceKey, when set, is unique across the ledger and names the award it
// pays (e.g. "quest:<progressID>"), so at-most-once payouts are enforced by
// the storage layer.
type LedgerEntry struct {
	ID             string       `json:"id"                         gorm:"type:char(36);primaryKey"`
	UserID         string       `json:"user_id"                    gorm:"type:varchar(64);not null;index:idx_ledger_user_time,priority:1"`
	DeltaXP        int64        `json:"delta_xp"                   gorm:"not null"`
	Reason         LedgerReason `json:"reason"                     gorm:"type:varchar(32);not null;index"`
	Description    string       `json:"description"                gorm:"type:varchar(255)"`
	RelatedEventID *string      `json:"related_event_id,omitempty" gorm:"type:char(36);index"`
	SourceKey      *string      `json:"-"                          gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt      time.Time    `json:"created_at"                 gorm:"not null;index:idx_ledger_user_time,priority:2;index"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// RuleWindow is the counting window of an XP rule cap.
type RuleWindow string

const (
	WindowNone     RuleWindow = ""
	WindowDaily    RuleWindow = "daily"
	WindowWeekly   RuleWindow = "weekly"
	WindowLifetime RuleWindow = "lifetime"
)

// XPRule maps an event type to its XP award and throttling policy.
//
//   - MaxPerWindow: maximum awards per Window (0 = unlimited).
//   - CooldownSeconds: minimum spacing between two awards (0 = none).
type XPRule struct {
	EventType       EventType  `json:"event_type"       gorm:"type:varchar(32);primaryKey"`
	XP              int64      `json:"xp"               gorm:"not null"`
	MaxPerWindow    int        `json:"max_per_window"   gorm:"not null;default:0"`
	Window          RuleWindow `json:"window"           gorm:"column:rule_window;type:varchar(16);not null;default:''"`
	CooldownSeconds int64      `json:"cooldown_seconds" gorm:"not null;default:0"`
	IsActive        bool       `json:"is_active"        gorm:"not null"`
	Description     string     `json:"description"      gorm:"type:varchar(255)"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the database table name for XPRule.
func (XPRule) TableName() string { return "xp_rules" }

// Cooldown returns the rule cooldown as a duration.
func (r XPRule) Cooldown() time.Duration { return time.Duration(r.CooldownSeconds) * time.Second }
