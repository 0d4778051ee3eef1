package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// newTestStorage creates a Storage over a temp sqlite file
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath)
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		os.Remove(dbPath)
	})

	return store
}

func TestEnsureUserAndGet(t *testing.T) {
	s := newTestStorage(t)

	if err := s.EnsureUser(100, "alice", "Alice"); err != nil {
		t.Fatalf("ensure user: %v", err)
	}

	u, err := s.GetUser(100)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Username != "alice" || u.FirstName != "Alice" {
		t.Errorf("unexpected profile: %q %q", u.Username, u.FirstName)
	}
	if u.PremiumUntil != nil {
		t.Error("new user must not be premium")
	}
	if u.ReferralBonusClaimed {
		t.Error("new user must not have claimed the bonus")
	}

	// Second call updates profile, does not reset anything
	if err := s.EnsureUser(100, "alice2", "Alice"); err != nil {
		t.Fatalf("ensure user again: %v", err)
	}
	u, _ = s.GetUser(100)
	if u.Username != "alice2" {
		t.Errorf("username not updated: %q", u.Username)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetUser(404)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantPremiumFresh(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	until, err := s.GrantPremium(200, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	want := now.Add(30 * 24 * time.Hour)
	if until.Unix() != want.Unix() {
		t.Errorf("until = %v, want %v", until, want)
	}
	if !s.IsPremium(200, now) {
		t.Error("user must be premium after grant")
	}
	if s.IsPremium(200, want.Add(time.Second)) {
		t.Error("expiry must be computed on read")
	}
}

func TestGrantPremiumStacks(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	first, err := s.GrantPremium(201, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}

	// Second grant while still premium stacks on top of the remaining time
	second, err := s.GrantPremium(201, 30*24*time.Hour, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	want := first.Add(30 * 24 * time.Hour)
	if second.Unix() != want.Unix() {
		t.Errorf("stacked until = %v, want %v", second, want)
	}
}

func TestGrantPremiumAfterExpiry(t *testing.T) {
	s := newTestStorage(t)
	past := time.Now().Add(-60 * 24 * time.Hour)

	if _, err := s.GrantPremium(202, 30*24*time.Hour, past); err != nil {
		t.Fatalf("grant in the past: %v", err)
	}

	// Entitlement lapsed; a new grant starts from now, not from the old expiry
	now := time.Now()
	until, err := s.GrantPremium(202, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("grant after expiry: %v", err)
	}

	want := now.Add(30 * 24 * time.Hour)
	if until.Unix() != want.Unix() {
		t.Errorf("until = %v, want %v", until, want)
	}
}

func TestRevokePremium(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	if _, err := s.GrantPremium(203, 30*24*time.Hour, now); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := s.RevokePremium(203); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.IsPremium(203, now) {
		t.Error("user must not be premium after revoke")
	}

	if err := s.RevokePremium(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke of unknown user: got %v, want ErrNotFound", err)
	}
}

func TestApplyPayment(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	until, err := s.ApplyPayment("tx-1", 300, 20_000_000, "0:sender", 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !s.IsPremium(300, now) {
		t.Error("user must be premium after payment")
	}
	if until.Unix() != now.Add(30*24*time.Hour).Unix() {
		t.Errorf("unexpected until: %v", until)
	}

	applied, err := s.IsPaymentApplied("tx-1")
	if err != nil || !applied {
		t.Fatalf("IsPaymentApplied = %v, %v", applied, err)
	}

	p, err := s.GetProcessedPayment("tx-1")
	if err != nil {
		t.Fatalf("get processed payment: %v", err)
	}
	if p.UserID != 300 || p.AmountNano != 20_000_000 {
		t.Errorf("unexpected ledger row: %+v", p)
	}
}

func TestApplyPaymentDuplicate(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	first, err := s.ApplyPayment("tx-dup", 301, 20_000_000, "0:sender", 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	// Re-delivery of the same transaction must not extend again
	_, err = s.ApplyPayment("tx-dup", 301, 20_000_000, "0:sender", 30*24*time.Hour, now.Add(time.Minute))
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	until, _, err := s.PremiumUntil(301)
	if err != nil {
		t.Fatalf("premium until: %v", err)
	}
	if until.Unix() != first.Unix() {
		t.Errorf("duplicate changed expiry: %v != %v", until, first)
	}

	count, _ := s.CountProcessedPayments()
	if count != 1 {
		t.Errorf("ledger rows = %d, want 1", count)
	}
}

func TestApplyPaymentDistinctTransactionsStack(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	if _, err := s.ApplyPayment("tx-a", 302, 20_000_000, "0:s", 30*24*time.Hour, now); err != nil {
		t.Fatalf("apply a: %v", err)
	}
	until, err := s.ApplyPayment("tx-b", 302, 20_000_000, "0:s", 30*24*time.Hour, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("apply b: %v", err)
	}

	want := now.Add(60 * 24 * time.Hour)
	if until.Unix() != want.Unix() {
		t.Errorf("two payments must stack: %v, want %v", until, want)
	}
}

func TestRecordUnmatchedPayment(t *testing.T) {
	s := newTestStorage(t)

	isNew, err := s.RecordUnmatchedPayment("tx-u", 20_000_000, "0:sender", "premum:123")
	if err != nil || !isNew {
		t.Fatalf("record = %v, %v", isNew, err)
	}

	isNew, err = s.RecordUnmatchedPayment("tx-u", 20_000_000, "0:sender", "premum:123")
	if err != nil || isNew {
		t.Fatalf("re-record = %v, %v, want false", isNew, err)
	}

	payments, err := s.ListUnmatchedPayments(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 1 || payments[0].Memo != "premum:123" {
		t.Errorf("unexpected list: %+v", payments)
	}
}

func TestExpiringUsers(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	// Lapses tomorrow: inside the window
	if _, err := s.GrantPremium(400, 24*time.Hour, now); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Lapses in 30 days: outside
	if _, err := s.GrantPremium(401, 30*24*time.Hour, now); err != nil {
		t.Fatalf("grant: %v", err)
	}

	users, err := s.ExpiringUsers(now, 3*24*time.Hour)
	if err != nil {
		t.Fatalf("expiring: %v", err)
	}
	if len(users) != 1 || users[0].UserID != 400 {
		t.Fatalf("unexpected expiring users: %+v", users)
	}

	// Notified: excluded from the next pass
	if err := s.MarkExpiryNotified(400, *users[0].PremiumUntil); err != nil {
		t.Fatalf("mark notified: %v", err)
	}
	users, _ = s.ExpiringUsers(now, 3*24*time.Hour)
	if len(users) != 0 {
		t.Fatalf("notified user listed again: %+v", users)
	}

	// A stacked extension re-arms the notice for the new expiry
	if _, err := s.GrantPremium(400, 24*time.Hour, now); err != nil {
		t.Fatalf("extend: %v", err)
	}
	users, _ = s.ExpiringUsers(now, 3*24*time.Hour)
	if len(users) != 1 || users[0].UserID != 400 {
		t.Fatalf("extension must re-arm the notice: %+v", users)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStorage(t)
	now := time.Now()

	s.EnsureUser(1, "a", "A")
	s.EnsureUser(2, "b", "B")
	s.GrantPremium(1, 24*time.Hour, now)

	users, err := s.CountUsers()
	if err != nil || users != 2 {
		t.Errorf("CountUsers = %d, %v", users, err)
	}
	premium, err := s.CountPremiumUsers(now)
	if err != nil || premium != 1 {
		t.Errorf("CountPremiumUsers = %d, %v", premium, err)
	}
}
