package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateTransaction  = errors.New("transaction already applied")
	ErrAlreadyReferred       = errors.New("user already referred")
	ErrSelfReferral          = errors.New("self referral")
	ErrInsufficientReferrals = errors.New("not enough referrals")
	ErrBonusAlreadyClaimed   = errors.New("referral bonus already claimed")
)

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			premium_until INTEGER,
			referral_bonus_claimed INTEGER NOT NULL DEFAULT 0,
			expiry_notified_until INTEGER,
			created_at INTEGER NOT NULL,
			last_seen INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_premium_until ON users(premium_until)`,

		`CREATE TABLE IF NOT EXISTS processed_payments (
			tx_hash TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			amount_nano INTEGER NOT NULL,
			sender_address TEXT,
			applied_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS referrals (
			referred_id INTEGER PRIMARY KEY,
			referrer_id INTEGER NOT NULL,
			converted INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			converted_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_referrer_id ON referrals(referrer_id)`,

		`CREATE TABLE IF NOT EXISTS unmatched_payments (
			tx_hash TEXT PRIMARY KEY,
			amount_nano INTEGER NOT NULL,
			sender_address TEXT,
			memo TEXT,
			seen_at INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Users ---

// EnsureUser creates the user row on first interaction or refreshes
// profile fields and last_seen on subsequent ones
func (s *Storage) EnsureUser(userID int64, username, firstName string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, username, first_name, created_at, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_seen = excluded.last_seen`,
		userID, username, firstName, now, now,
	)
	return err
}

// GetUser returns a user by ID
func (s *Storage) GetUser(userID int64) (*User, error) {
	var u User
	var username, firstName sql.NullString
	var premiumUntil sql.NullInt64
	var claimed int
	var createdAt, lastSeen int64

	err := s.db.QueryRow(
		`SELECT user_id, username, first_name, premium_until, referral_bonus_claimed, created_at, last_seen
		 FROM users WHERE user_id = ?`,
		userID,
	).Scan(&u.UserID, &username, &firstName, &premiumUntil, &claimed, &createdAt, &lastSeen)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Username = username.String
	u.FirstName = firstName.String
	u.ReferralBonusClaimed = claimed != 0
	u.CreatedAt = time.Unix(createdAt, 0)
	u.LastSeen = time.Unix(lastSeen, 0)
	if premiumUntil.Valid {
		t := time.Unix(premiumUntil.Int64, 0)
		u.PremiumUntil = &t
	}

	return &u, nil
}

// PremiumUntil returns the user's premium expiry, if any
func (s *Storage) PremiumUntil(userID int64) (time.Time, bool, error) {
	var premiumUntil sql.NullInt64
	err := s.db.QueryRow(
		"SELECT premium_until FROM users WHERE user_id = ?",
		userID,
	).Scan(&premiumUntil)

	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if !premiumUntil.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(premiumUntil.Int64, 0), true, nil
}

// IsPremium reports whether the user's entitlement is active at the
// given instant. Expiry is computed on read, never swept by a writer.
func (s *Storage) IsPremium(userID int64, now time.Time) bool {
	until, ok, err := s.PremiumUntil(userID)
	if err != nil || !ok {
		return false
	}
	return until.After(now)
}

// GrantPremium extends the user's entitlement by d, stacking on top of
// the remaining time: the extension starts from max(now, premium_until).
// Used by the admin grant path; the payment and referral paths extend
// through their own transactions with the same rule.
func (s *Storage) GrantPremium(userID int64, d time.Duration, now time.Time) (time.Time, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback()

	until, err := extendPremiumTx(tx, userID, d, now)
	if err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// RevokePremium clears the user's entitlement
func (s *Storage) RevokePremium(userID int64) error {
	result, err := s.db.Exec(
		"UPDATE users SET premium_until = NULL, expiry_notified_until = NULL WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// extendPremiumTx applies the stacking extension inside an open
// transaction, creating the user row if the target has never been seen
func extendPremiumTx(tx *sql.Tx, userID int64, d time.Duration, now time.Time) (time.Time, error) {
	_, err := tx.Exec(
		`INSERT INTO users (user_id, created_at, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, now.Unix(), now.Unix(),
	)
	if err != nil {
		return time.Time{}, err
	}

	var current sql.NullInt64
	err = tx.QueryRow(
		"SELECT premium_until FROM users WHERE user_id = ?",
		userID,
	).Scan(&current)
	if err != nil {
		return time.Time{}, err
	}

	base := now
	if current.Valid && current.Int64 > now.Unix() {
		base = time.Unix(current.Int64, 0)
	}
	until := base.Add(d)

	// A fresh extension re-arms the expiry notice
	_, err = tx.Exec(
		"UPDATE users SET premium_until = ?, expiry_notified_until = NULL WHERE user_id = ?",
		until.Unix(), userID,
	)
	if err != nil {
		return time.Time{}, err
	}

	return until, nil
}

// --- Payments ---

// IsPaymentApplied reports whether a transaction has already been credited
func (s *Storage) IsPaymentApplied(txHash string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM processed_payments WHERE tx_hash = ?",
		txHash,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ApplyPayment records the transaction in the payments ledger and extends
// the target user's entitlement as one transaction: if either write fails
// neither persists. Returns ErrDuplicateTransaction if the transaction
// was already applied.
func (s *Storage) ApplyPayment(txHash string, userID, amountNano int64, sender string, d time.Duration, now time.Time) (time.Time, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT OR IGNORE INTO processed_payments (tx_hash, user_id, amount_nano, sender_address, applied_at)
		 VALUES (?, ?, ?, ?, ?)`,
		txHash, userID, amountNano, sender, now.Unix(),
	)
	if err != nil {
		return time.Time{}, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return time.Time{}, ErrDuplicateTransaction
	}

	until, err := extendPremiumTx(tx, userID, d, now)
	if err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// GetProcessedPayment returns an applied payment by transaction hash
func (s *Storage) GetProcessedPayment(txHash string) (*ProcessedPayment, error) {
	var p ProcessedPayment
	var sender sql.NullString
	var appliedAt int64

	err := s.db.QueryRow(
		`SELECT tx_hash, user_id, amount_nano, sender_address, applied_at
		 FROM processed_payments WHERE tx_hash = ?`,
		txHash,
	).Scan(&p.TxHash, &p.UserID, &p.AmountNano, &sender, &appliedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.SenderAddress = sender.String
	p.AppliedAt = time.Unix(appliedAt, 0)
	return &p, nil
}

// CountProcessedPayments returns the number of applied payments
func (s *Storage) CountProcessedPayments() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM processed_payments").Scan(&count)
	return count, err
}

// RecordUnmatchedPayment keeps a price-sized transfer with an unparseable
// memo for manual review, returns true if it was new
func (s *Storage) RecordUnmatchedPayment(txHash string, amountNano int64, sender, memo string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO unmatched_payments (tx_hash, amount_nano, sender_address, memo, seen_at)
		 VALUES (?, ?, ?, ?, ?)`,
		txHash, amountNano, sender, memo, time.Now().Unix(),
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListUnmatchedPayments returns the most recent unmatched payments
func (s *Storage) ListUnmatchedPayments(limit int) ([]UnmatchedPayment, error) {
	rows, err := s.db.Query(
		`SELECT tx_hash, amount_nano, sender_address, memo, seen_at
		 FROM unmatched_payments ORDER BY seen_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []UnmatchedPayment
	for rows.Next() {
		var p UnmatchedPayment
		var sender, memo sql.NullString
		var seenAt int64

		if err := rows.Scan(&p.TxHash, &p.AmountNano, &sender, &memo, &seenAt); err != nil {
			return nil, err
		}

		p.SenderAddress = sender.String
		p.Memo = memo.String
		p.SeenAt = time.Unix(seenAt, 0)
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// --- Expiry notices ---

// ExpiringUsers returns users whose premium lapses within the window and
// who have not been notified for their current expiry yet
func (s *Storage) ExpiringUsers(now time.Time, within time.Duration) ([]User, error) {
	deadline := now.Add(within).Unix()
	rows, err := s.db.Query(
		`SELECT user_id, premium_until FROM users
		 WHERE premium_until IS NOT NULL
		   AND premium_until > ?
		   AND premium_until <= ?
		   AND (expiry_notified_until IS NULL OR expiry_notified_until < premium_until)`,
		now.Unix(), deadline,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var until int64
		if err := rows.Scan(&u.UserID, &until); err != nil {
			return nil, err
		}
		t := time.Unix(until, 0)
		u.PremiumUntil = &t
		users = append(users, u)
	}

	return users, rows.Err()
}

// MarkExpiryNotified records that the user was warned about the given expiry
func (s *Storage) MarkExpiryNotified(userID int64, until time.Time) error {
	_, err := s.db.Exec(
		"UPDATE users SET expiry_notified_until = ? WHERE user_id = ?",
		until.Unix(), userID,
	)
	return err
}

// --- Stats ---

// CountUsers returns the total number of known users
func (s *Storage) CountUsers() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CountPremiumUsers returns the number of users premium at the given instant
func (s *Storage) CountPremiumUsers(now time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM users WHERE premium_until IS NOT NULL AND premium_until > ?",
		now.Unix(),
	).Scan(&count)
	return count, err
}
