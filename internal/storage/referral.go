package storage

import (
	"database/sql"
	"time"
)

// AddReferral records that referredID was invited by referrerID. A user
// can be referred at most once; later attempts return ErrAlreadyReferred.
func (s *Storage) AddReferral(referrerID, referredID int64) error {
	if referrerID == referredID {
		return ErrSelfReferral
	}

	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO referrals (referred_id, referrer_id, created_at)
		 VALUES (?, ?, ?)`,
		referredID, referrerID, time.Now().Unix(),
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

// GetReferral returns the relationship for a referred user
func (s *Storage) GetReferral(referredID int64) (*Referral, error) {
	var r Referral
	var converted int
	var createdAt int64
	var convertedAt sql.NullInt64

	err := s.db.QueryRow(
		`SELECT referred_id, referrer_id, converted, created_at, converted_at
		 FROM referrals WHERE referred_id = ?`,
		referredID,
	).Scan(&r.ReferredID, &r.ReferrerID, &converted, &createdAt, &convertedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Converted = converted != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	if convertedAt.Valid {
		t := time.Unix(convertedAt.Int64, 0)
		r.ConvertedAt = &t
	}

	return &r, nil
}

// GetReferralStats returns invitation counts for a referrer
func (s *Storage) GetReferralStats(referrerID int64) (ReferralStats, error) {
	var stats ReferralStats
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(converted), 0)
		 FROM referrals WHERE referrer_id = ?`,
		referrerID,
	).Scan(&stats.Total, &stats.Converted)
	return stats, err
}

// ConvertReferral flips the relationship for referredID to converted and
// extends the referrer's entitlement by bonus, as one transaction.
// Returns the referrer ID and true only on the first conversion; if the
// relationship does not exist or was already converted it is a no-op.
func (s *Storage) ConvertReferral(referredID int64, bonus time.Duration, now time.Time) (int64, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var referrerID int64
	var converted int
	err = tx.QueryRow(
		"SELECT referrer_id, converted FROM referrals WHERE referred_id = ?",
		referredID,
	).Scan(&referrerID, &converted)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if converted != 0 {
		return referrerID, false, nil
	}

	_, err = tx.Exec(
		"UPDATE referrals SET converted = 1, converted_at = ? WHERE referred_id = ?",
		now.Unix(), referredID,
	)
	if err != nil {
		return 0, false, err
	}

	if _, err := extendPremiumTx(tx, referrerID, bonus, now); err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return referrerID, true, nil
}

// ClaimReferralBonus grants the one-time bonus for inviting at least
// threshold users. The claim flag and the extension are written together.
func (s *Storage) ClaimReferralBonus(userID int64, threshold int, bonus time.Duration, now time.Time) (time.Time, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM referrals WHERE referrer_id = ?",
		userID,
	).Scan(&count)
	if err != nil {
		return time.Time{}, err
	}
	if count < threshold {
		return time.Time{}, ErrInsufficientReferrals
	}

	var claimed int
	err = tx.QueryRow(
		"SELECT referral_bonus_claimed FROM users WHERE user_id = ?",
		userID,
	).Scan(&claimed)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, err
	}
	if claimed != 0 {
		return time.Time{}, ErrBonusAlreadyClaimed
	}

	until, err := extendPremiumTx(tx, userID, bonus, now)
	if err != nil {
		return time.Time{}, err
	}

	_, err = tx.Exec(
		"UPDATE users SET referral_bonus_claimed = 1 WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, err
	}
	return until, nil
}
