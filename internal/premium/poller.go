package premium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leoaide/premium-bot/internal/config"
	"github.com/leoaide/premium-bot/internal/storage"
	"github.com/leoaide/premium-bot/internal/toncenter"
)

// Ledger fetches recent transactions from the external chain API
type Ledger interface {
	GetTransactions(ctx context.Context, address string, limit int) ([]toncenter.Transaction, error)
}

// Notifier delivers a message to a user, fire-and-forget from the
// poller's point of view
type Notifier interface {
	SendNotification(ctx context.Context, userID int64, text string) error
}

// Poller periodically reconciles the service wallet's transactions with
// the entitlement store
type Poller struct {
	cfg        *config.Config
	storage    *storage.Storage
	ledger     Ledger
	matcher    *Matcher
	propagator *Propagator
	notifier   Notifier
	log        *slog.Logger

	walletRaw string
}

// NewPoller creates a payment poller
func NewPoller(cfg *config.Config, store *storage.Storage, ledger Ledger, notifier Notifier, log *slog.Logger) *Poller {
	walletRaw := ""
	if cfg.ServiceWalletAddr != "" {
		walletRaw = toncenter.NormalizeAddress(cfg.ServiceWalletAddr)
	}

	return &Poller{
		cfg:        cfg,
		storage:    store,
		ledger:     ledger,
		matcher:    NewMatcher(cfg.ServiceWalletAddr, cfg.PremiumPriceNano),
		propagator: NewPropagator(cfg, store, notifier, log),
		notifier:   notifier,
		log:        log,
		walletRaw:  walletRaw,
	}
}

// Start runs the poll loop until ctx is cancelled. Cycles run strictly
// one after another; a tick that fires mid-cycle is dropped.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if p.walletRaw == "" {
		p.log.Info("payment poller disabled: SERVICE_WALLET_ADDR not set")
		return
	}

	p.log.Info("payment poller started",
		"service_wallet", p.cfg.ServiceWalletAddr,
		"interval", interval,
	)

	time.Sleep(5 * time.Second) // Initial delay

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunCycle(ctx); err != nil {
				p.log.Error("poll cycle", "error", err)
			}
		}
	}
}

// RunCycle executes one fetch-match-apply pass. A fetch failure aborts
// the cycle with nothing applied; the next tick retries from scratch.
func (p *Poller) RunCycle(ctx context.Context) error {
	txs, err := p.ledger.GetTransactions(ctx, p.walletRaw, p.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}

	// API returns newest first; apply in chain order
	for i := len(txs) - 1; i >= 0; i-- {
		p.processTransaction(ctx, &txs[i])
	}

	return nil
}

func (p *Poller) processTransaction(ctx context.Context, tx *toncenter.Transaction) {
	if tx.Hash == "" {
		return
	}

	applied, err := p.storage.IsPaymentApplied(tx.Hash)
	if err != nil {
		p.log.Error("check payment applied", "tx_hash", tx.Hash, "error", err)
		return
	}
	if applied {
		return
	}

	userID, ok := p.matcher.Match(tx)
	if !ok {
		p.recordIfPlausible(tx)
		return
	}

	amount, sender, _, _ := p.matcher.InboundTransfer(tx)

	until, err := p.storage.ApplyPayment(tx.Hash, userID, amount, sender, p.cfg.PremiumDuration, time.Now())
	if errors.Is(err, storage.ErrDuplicateTransaction) {
		return
	}
	if err != nil {
		// Retried next cycle: the ledger row did not persist
		p.log.Error("apply payment", "tx_hash", tx.Hash, "user_id", userID, "error", err)
		return
	}

	p.log.Info("premium payment applied",
		"user_id", userID,
		"amount_ton", toncenter.NanoToTON(amount),
		"sender", toncenter.ShortAddr(sender, 4),
		"tx_hash", tx.Hash,
	)

	// Downstream of the durable grant everything is best-effort
	text := fmt.Sprintf(
		"🎉 <b>Оплата получена!</b>\n\n"+
			"Премиум-доступ активен до <b>%s</b>.\n"+
			"Спасибо за поддержку! 💙",
		until.Format("02.01.2006"),
	)
	if err := p.notifier.SendNotification(ctx, userID, text); err != nil {
		p.log.Error("send payment notification", "user_id", userID, "error", err)
	}

	p.propagator.OnPremiumGranted(ctx, userID)
}

// recordIfPlausible keeps price-sized transfers with a bad memo so an
// admin can credit them by hand
func (p *Poller) recordIfPlausible(tx *toncenter.Transaction) {
	amount, sender, memo, ok := p.matcher.InboundTransfer(tx)
	if !ok || amount != p.matcher.PriceNano() {
		return
	}

	isNew, err := p.storage.RecordUnmatchedPayment(tx.Hash, amount, sender, memo)
	if err != nil {
		p.log.Error("record unmatched payment", "tx_hash", tx.Hash, "error", err)
		return
	}
	if isNew {
		p.log.Warn("payment with unparseable memo",
			"tx_hash", tx.Hash,
			"amount_ton", toncenter.NanoToTON(amount),
			"memo", memo,
		)
	}
}
