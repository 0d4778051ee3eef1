package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddReferral(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.AddReferral(10, 20))

	r, err := s.GetReferral(20)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.ReferrerID)
	assert.False(t, r.Converted)

	// A user can be referred at most once, even by someone else
	assert.ErrorIs(t, s.AddReferral(10, 20), ErrAlreadyReferred)
	assert.ErrorIs(t, s.AddReferral(11, 20), ErrAlreadyReferred)

	assert.ErrorIs(t, s.AddReferral(30, 30), ErrSelfReferral)
}

func TestGetReferralStats(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.AddReferral(10, 21))
	require.NoError(t, s.AddReferral(10, 22))
	require.NoError(t, s.AddReferral(10, 23))

	_, converted, err := s.ConvertReferral(21, 3*24*time.Hour, now)
	require.NoError(t, err)
	require.True(t, converted)

	stats, err := s.GetReferralStats(10)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Converted)
}

func TestConvertReferral(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.AddReferral(10, 20))

	referrerID, converted, err := s.ConvertReferral(20, 3*24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Equal(t, int64(10), referrerID)

	// The referrer got the bonus
	until, ok, err := s.PremiumUntil(10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Add(3*24*time.Hour).Unix(), until.Unix())

	// Converting again is a no-op: the flag never reverts and the
	// referrer is rewarded at most once per relationship
	_, converted, err = s.ConvertReferral(20, 3*24*time.Hour, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, converted)

	again, _, err := s.PremiumUntil(10)
	require.NoError(t, err)
	assert.Equal(t, until.Unix(), again.Unix())
}

func TestConvertReferralNoRelationship(t *testing.T) {
	s := newTestStorage(t)

	referrerID, converted, err := s.ConvertReferral(777, 3*24*time.Hour, time.Now())
	require.NoError(t, err)
	assert.False(t, converted)
	assert.Zero(t, referrerID)
}

func TestClaimReferralBonus(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.EnsureUser(10, "ref", "Ref"))

	// Below threshold
	_, err := s.ClaimReferralBonus(10, 3, 7*24*time.Hour, now)
	assert.ErrorIs(t, err, ErrInsufficientReferrals)

	require.NoError(t, s.AddReferral(10, 21))
	require.NoError(t, s.AddReferral(10, 22))
	require.NoError(t, s.AddReferral(10, 23))

	until, err := s.ClaimReferralBonus(10, 3, 7*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour).Unix(), until.Unix())

	u, err := s.GetUser(10)
	require.NoError(t, err)
	assert.True(t, u.ReferralBonusClaimed)

	// Second claim fails and does not extend
	_, err = s.ClaimReferralBonus(10, 3, 7*24*time.Hour, now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)

	again, _, err := s.PremiumUntil(10)
	require.NoError(t, err)
	assert.Equal(t, until.Unix(), again.Unix())
}

func TestClaimReferralBonusStacks(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	require.NoError(t, s.AddReferral(10, 21))
	require.NoError(t, s.AddReferral(10, 22))
	require.NoError(t, s.AddReferral(10, 23))

	// Already premium via payment; the claim stacks on top
	paid, err := s.ApplyPayment("tx-claim", 10, 20_000_000, "0:s", 30*24*time.Hour, now)
	require.NoError(t, err)

	until, err := s.ClaimReferralBonus(10, 3, 7*24*time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, paid.Add(7*24*time.Hour).Unix(), until.Unix())
}
