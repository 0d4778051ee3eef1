package premium

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/leoaide/premium-bot/internal/toncenter"
)

var memoRegex = regexp.MustCompile(`^premium:(\d+)$`)

// Matcher decides whether an on-chain transaction is a premium payment
// and which user it pays for. Pure, no I/O.
type Matcher struct {
	walletRaw string
	priceNano int64
}

// NewMatcher creates a matcher for the given service wallet and exact price
func NewMatcher(serviceWallet string, priceNano int64) *Matcher {
	return &Matcher{
		walletRaw: toncenter.NormalizeAddress(serviceWallet),
		priceNano: priceNano,
	}
}

// InboundTransfer extracts the value transfer if tx is a plain inbound
// transfer to the service wallet. Transactions with outgoing messages are
// the wallet spending its own funds and never count.
func (m *Matcher) InboundTransfer(tx *toncenter.Transaction) (amountNano int64, sender, memo string, ok bool) {
	if tx.InMsg == nil || len(tx.OutMsgs) > 0 {
		return 0, "", "", false
	}

	if toncenter.NormalizeAddress(tx.InMsg.Destination) != m.walletRaw {
		return 0, "", "", false
	}

	amountNano = toncenter.ParseNano(tx.InMsg.Value)
	if amountNano <= 0 {
		return 0, "", "", false
	}

	if mc := tx.InMsg.MessageContent; mc != nil && mc.Decoded != nil {
		memo = strings.TrimSpace(mc.Decoded.Comment)
	}

	return amountNano, tx.InMsg.Source, memo, true
}

// Match returns the user a transaction pays premium for. ok is true only
// for an inbound transfer of exactly the configured price whose memo is
// premium:<user_id>. Everything else is noise, not an error.
func (m *Matcher) Match(tx *toncenter.Transaction) (int64, bool) {
	amount, _, memo, ok := m.InboundTransfer(tx)
	if !ok || amount != m.priceNano {
		return 0, false
	}

	matches := memoRegex.FindStringSubmatch(memo)
	if matches == nil {
		return 0, false
	}

	userID, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}

	return userID, true
}

// PriceNano returns the exact payment amount the matcher accepts
func (m *Matcher) PriceNano() int64 {
	return m.priceNano
}
