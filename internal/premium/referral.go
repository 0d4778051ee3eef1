package premium

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leoaide/premium-bot/internal/config"
	"github.com/leoaide/premium-bot/internal/storage"
)

// Propagator rewards referrers when the user they invited first attains
// premium. A relationship converts at most once, so a referrer is never
// rewarded twice for the same user.
type Propagator struct {
	cfg      *config.Config
	storage  *storage.Storage
	notifier Notifier
	log      *slog.Logger
}

// NewPropagator creates a referral reward propagator
func NewPropagator(cfg *config.Config, store *storage.Storage, notifier Notifier, log *slog.Logger) *Propagator {
	return &Propagator{
		cfg:      cfg,
		storage:  store,
		notifier: notifier,
		log:      log,
	}
}

// OnPremiumGranted credits the referrer of userID, if the relationship
// exists and has not converted yet. Failures are logged only; the grant
// that triggered the call is already durable.
func (p *Propagator) OnPremiumGranted(ctx context.Context, userID int64) {
	referrerID, converted, err := p.storage.ConvertReferral(userID, p.cfg.ReferralBonus, time.Now())
	if err != nil {
		p.log.Error("convert referral", "referred_id", userID, "error", err)
		return
	}
	if !converted {
		return
	}

	bonusDays := int(p.cfg.ReferralBonus.Hours() / 24)
	p.log.Info("referral converted",
		"referred_id", userID,
		"referrer_id", referrerID,
		"bonus_days", bonusDays,
	)

	text := fmt.Sprintf(
		"🎁 <b>Твой реферал оформил премиум!</b>\n\n"+
			"Тебе начислено <b>+%d дн.</b> премиум-доступа.",
		bonusDays,
	)
	if err := p.notifier.SendNotification(ctx, referrerID, text); err != nil {
		p.log.Error("send referral notification", "referrer_id", referrerID, "error", err)
	}
}
