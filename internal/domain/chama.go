package domain

import (
	"time"

	"github.com/google/uuid"
)

// ─── Chama Types ────────────────────────────────────────────────────────────

// ContributionFrequency is how often a chama expects contributions.
type ContributionFrequency string

const (
	FrequencyWeekly  ContributionFrequency = "weekly"
	FrequencyMonthly ContributionFrequency = "monthly"
)

// WithdrawalPolicy governs how pooled funds may be disbursed.
type WithdrawalPolicy string

const (
	WithdrawConsensus    WithdrawalPolicy = "consensus"
	WithdrawAdminOnly    WithdrawalPolicy = "admin_only"
	WithdrawMajorityVote WithdrawalPolicy = "majority_vote"
)

// MemberRole distinguishes the chama admin from ordinary members.
type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// MinChamaContribution is the floor for a chama's configured minimum.
const MinChamaContribution = 100.0

// Chama is a group savings account. Members pool contributions toward an
// optional shared target; rules are fixed at creation.
type Chama struct {
	ID              uuid.UUID             `json:"id"`
	AdminUserID     string                `json:"admin_user_id"`
	AdminPhone      string                `json:"admin_phone"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	MinContribution float64               `json:"min_contribution"`
	Frequency       ContributionFrequency `json:"contribution_frequency"`
	MaxMembers      int                   `json:"max_members"`
	TargetKes       float64               `json:"target_amount_kes,omitempty"` // 0 = no target
	CurrentKes      float64               `json:"current_amount_kes"`
	Active          bool                  `json:"is_active"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	EndDate         *time.Time            `json:"end_date,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	Members         []Member              `json:"members"`
	Rules           ChamaRules            `json:"rules"`
	Stats           ChamaStats            `json:"stats"`
}

// MemberCount returns the number of active members.
func (c *Chama) MemberCount() int {
	n := 0
	for i := range c.Members {
		if c.Members[i].Active {
			n++
		}
	}
	return n
}

// FindMember returns the member record for a user id, or nil.
func (c *Chama) FindMember(userID string) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// Member is one user's participation record inside a chama.
type Member struct {
	UserID             string     `json:"user_id"`
	Phone              string     `json:"phone"`
	Name               string     `json:"name"`
	JoinedAt           time.Time  `json:"joined_at"`
	Active             bool       `json:"is_active"`
	TotalKes           float64    `json:"total_contributed_kes"`
	ContributionCount  int        `json:"contribution_count"`
	LastContributionAt *time.Time `json:"last_contribution_at,omitempty"`
	PenaltiesKes       float64    `json:"penalties_kes"`
	Role               MemberRole `json:"role"`
}

// ChamaRules are fixed at creation and not editable thereafter.
type ChamaRules struct {
	LatePenaltyKes    float64          `json:"late_penalty_kes"`
	MissedLimit       int              `json:"missed_payment_limit"`
	Withdrawal        WithdrawalPolicy `json:"withdrawal_policy"`
	VoteThresholdPct  float64          `json:"vote_threshold_pct"`
	AutoKickInactive  bool             `json:"auto_kick_inactive"`
	InactiveAfterDays int              `json:"inactive_after_days"`
}

// DefaultChamaRules returns the rules applied to every new chama.
func DefaultChamaRules() ChamaRules {
	return ChamaRules{
		LatePenaltyKes:    50,
		MissedLimit:       3,
		Withdrawal:        WithdrawMajorityVote,
		VoteThresholdPct:  60,
		AutoKickInactive:  true,
		InactiveAfterDays: 90,
	}
}

// ChamaStats is fully derived and recomputed after every contribution.
type ChamaStats struct {
	TotalCollectedKes  float64 `json:"total_collected_kes"`
	TotalDisbursedKes  float64 `json:"total_disbursed_kes"`
	AvgContributionKes float64 `json:"avg_contribution_kes"`
	OnTimeRatePct      float64 `json:"on_time_rate_pct"`
	RetentionRatePct   float64 `json:"retention_rate_pct"`
	CompliancePct      float64 `json:"compliance_pct"`
}

// Contribution is a chama-scoped ledger entry. The penalty on a late
// contribution is recorded for statistics but never deducted from the
// pooled balance.
type Contribution struct {
	ID         uuid.UUID `json:"id"`
	ChamaID    uuid.UUID `json:"chama_id"`
	UserID     string    `json:"user_id"`
	Phone      string    `json:"phone"`
	AmountKes  float64   `json:"amount_kes"`
	Date       time.Time `json:"date"`
	Late       bool      `json:"is_late"`
	PenaltyKes float64   `json:"penalty_kes"`
	TxRef      string    `json:"tx_ref,omitempty"`
}
