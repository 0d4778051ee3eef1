package storage

import "time"

// User holds a user's profile and premium entitlement
type User struct {
	UserID               int64
	Username             string
	FirstName            string
	PremiumUntil         *time.Time
	ReferralBonusClaimed bool
	CreatedAt            time.Time
	LastSeen             time.Time
}

// ProcessedPayment is an applied on-chain payment; rows are append-only
// and their presence is what prevents double-crediting a transaction
type ProcessedPayment struct {
	TxHash        string
	UserID        int64
	AmountNano    int64
	SenderAddress string
	AppliedAt     time.Time
}

// Referral links a referred user to their referrer; Converted flips
// once, the first time the referred user attains premium
type Referral struct {
	ReferredID  int64
	ReferrerID  int64
	Converted   bool
	CreatedAt   time.Time
	ConvertedAt *time.Time
}

// UnmatchedPayment records a transfer that carried the premium price but
// an unparseable memo, kept for manual admin review
type UnmatchedPayment struct {
	TxHash        string
	AmountNano    int64
	SenderAddress string
	Memo          string
	SeenAt        time.Time
}

// ReferralStats summarizes a referrer's invitations
type ReferralStats struct {
	Total     int
	Converted int
}
