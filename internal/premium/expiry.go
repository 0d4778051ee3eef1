package premium

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leoaide/premium-bot/internal/storage"
)

// expiryWindow is how far ahead users are warned about a lapsing entitlement
const expiryWindow = 3 * 24 * time.Hour

// ExpiryNotifier warns users shortly before their premium lapses. It only
// reads premium_until; expiry itself is computed on read everywhere, so
// this worker never races the credit paths.
type ExpiryNotifier struct {
	storage  *storage.Storage
	notifier Notifier
	log      *slog.Logger
}

// NewExpiryNotifier creates an expiry notifier
func NewExpiryNotifier(store *storage.Storage, notifier Notifier, log *slog.Logger) *ExpiryNotifier {
	return &ExpiryNotifier{
		storage:  store,
		notifier: notifier,
		log:      log,
	}
}

// Start runs a daily pass until ctx is cancelled
func (e *ExpiryNotifier) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce notifies every user whose premium lapses within the window and
// who has not been warned about their current expiry
func (e *ExpiryNotifier) RunOnce(ctx context.Context) {
	users, err := e.storage.ExpiringUsers(time.Now(), expiryWindow)
	if err != nil {
		e.log.Error("list expiring users", "error", err)
		return
	}

	for _, u := range users {
		text := fmt.Sprintf(
			"⏳ <b>Премиум скоро закончится</b>\n\n"+
				"Доступ истекает <b>%s</b>. Продли его оплатой или приглашай друзей!",
			u.PremiumUntil.Format("02.01.2006"),
		)

		if err := e.notifier.SendNotification(ctx, u.UserID, text); err != nil {
			e.log.Error("send expiry notification", "user_id", u.UserID, "error", err)
			continue
		}

		if err := e.storage.MarkExpiryNotified(u.UserID, *u.PremiumUntil); err != nil {
			e.log.Error("mark expiry notified", "user_id", u.UserID, "error", err)
		}
	}

	if len(users) > 0 {
		e.log.Info("expiry notices sent", "count", len(users))
	}
}
