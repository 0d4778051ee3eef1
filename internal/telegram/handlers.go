package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/leoaide/premium-bot/internal/config"
	"github.com/leoaide/premium-bot/internal/storage"
	"github.com/leoaide/premium-bot/internal/toncenter"
)

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot     *bot.Bot
	cfg     *config.Config
	storage *storage.Storage
	ton     *toncenter.Client
	states  *StateManager
	log     *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, ton *toncenter.Client, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		storage: store,
		ton:     ton,
		states:  NewStateManager(),
		log:     log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/me", bot.MatchTypeExact, b.meHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/admin", bot.MatchTypeExact, b.adminHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	user := update.Message.From
	if err := b.storage.EnsureUser(user.ID, user.Username, user.FirstName); err != nil {
		b.log.Error("ensure user", "user_id", user.ID, "error", err)
	}

	// Referral deep link: /start ref<referrer_id>
	parts := strings.Fields(update.Message.Text)
	if len(parts) > 1 && strings.HasPrefix(parts[1], "ref") {
		if referrerID, err := strconv.ParseInt(strings.TrimPrefix(parts[1], "ref"), 10, 64); err == nil {
			b.registerReferral(referrerID, user.ID)
		}
	}

	userName := user.FirstName
	if userName == "" {
		userName = user.Username
	}
	if userName == "" {
		userName = "друг"
	}

	text := fmt.Sprintf(
		"<a href='tg://user?id=%d'>%s</a>, добро пожаловать! 🚀\n\n"+
			"Премиум-доступ открывает все функции бота.\n"+
			"Оплата в TON или бесплатно — за приглашённых друзей.\n\n"+
			"Выбери действие 👇",
		user.ID, userName,
	)

	b.sendMessage(ctx, update.Message.Chat.ID, text, MainKeyboard())
}

func (b *Bot) registerReferral(referrerID, referredID int64) {
	err := b.storage.AddReferral(referrerID, referredID)
	switch {
	case err == nil:
		b.log.Info("referral registered", "referrer_id", referrerID, "referred_id", referredID)
	case errors.Is(err, storage.ErrSelfReferral), errors.Is(err, storage.ErrAlreadyReferred):
		b.log.Debug("referral ignored", "referrer_id", referrerID, "referred_id", referredID, "reason", err)
	default:
		b.log.Error("register referral", "referrer_id", referrerID, "error", err)
	}
}

func (b *Bot) meHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.profileText(update.Message.From.ID), MainKeyboard())
}

func (b *Bot) adminHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || !b.cfg.AdminUserIDs[update.Message.From.ID] {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, "🛠 <b>Админ-панель</b>", AdminKeyboard())
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(userID)
	if state == nil {
		return
	}

	switch state.State {
	case StateAwaitGrant:
		b.handleAwaitGrant(ctx, update.Message, text)
	case StateAwaitRevoke:
		b.handleAwaitRevoke(ctx, update.Message, text)
	}
}

// handleAwaitGrant expects "<user_id> [days]" from an admin
func (b *Bot) handleAwaitGrant(ctx context.Context, msg *models.Message, text string) {
	adminID := msg.From.ID
	if !b.cfg.AdminUserIDs[adminID] {
		b.states.Clear(adminID)
		return
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return
	}

	targetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || targetID <= 0 {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Неверный ID. Формат: <code>123456789 30</code>", nil)
		return
	}

	days := 30
	if len(parts) > 1 {
		if d, err := strconv.Atoi(parts[1]); err == nil && d > 0 {
			days = d
		}
	}

	b.states.Clear(adminID)

	until, err := b.storage.GrantPremium(targetID, time.Duration(days)*24*time.Hour, time.Now())
	if err != nil {
		b.log.Error("admin grant", "target_id", targetID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при выдаче премиума.", AdminKeyboard())
		return
	}

	b.log.Info("admin granted premium", "admin_id", adminID, "target_id", targetID, "days", days)
	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Пользователю <code>%d</code> выдан премиум до <b>%s</b>.", targetID, until.Format("02.01.2006")),
		AdminKeyboard(),
	)

	notice := fmt.Sprintf("🎉 Вам выдан премиум-доступ на <b>%d дн.</b> от администратора!", days)
	if err := b.SendNotification(ctx, targetID, notice); err != nil {
		b.log.Error("notify granted user", "target_id", targetID, "error", err)
	}
}

// handleAwaitRevoke expects "<user_id>" from an admin
func (b *Bot) handleAwaitRevoke(ctx context.Context, msg *models.Message, text string) {
	adminID := msg.From.ID
	if !b.cfg.AdminUserIDs[adminID] {
		b.states.Clear(adminID)
		return
	}

	targetID, err := strconv.ParseInt(text, 10, 64)
	if err != nil || targetID <= 0 {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Неверный ID.", nil)
		return
	}

	b.states.Clear(adminID)

	err = b.storage.RevokePremium(targetID)
	if errors.Is(err, storage.ErrNotFound) {
		b.sendMessage(ctx, msg.Chat.ID, "❌ Пользователь не найден.", AdminKeyboard())
		return
	}
	if err != nil {
		b.log.Error("admin revoke", "target_id", targetID, "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "❌ Ошибка при отзыве премиума.", AdminKeyboard())
		return
	}

	b.log.Info("admin revoked premium", "admin_id", adminID, "target_id", targetID)
	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("✅ Премиум пользователя <code>%d</code> отозван.", targetID),
		AdminKeyboard(),
	)
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	data := cb.Data

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	switch data {
	case "back":
		b.showMainMenu(ctx, cb)
	case "me":
		b.editMessage(ctx, cb.Message, b.profileText(cb.From.ID), MainKeyboard())
	case "premium":
		b.showPremium(ctx, cb)
	case "pay":
		b.showPayInstructions(ctx, cb)
	case "check_payment":
		b.handleCheckPayment(ctx, cb)
	case "referral":
		b.showReferrals(ctx, cb)
	case "claim":
		b.handleClaim(ctx, cb)
	case "admin_grant":
		b.handleAdminGrant(ctx, cb)
	case "admin_revoke":
		b.handleAdminRevoke(ctx, cb)
	case "admin_stats":
		b.showAdminStats(ctx, cb)
	case "admin_unmatched":
		b.showUnmatched(ctx, cb)
	default:
		b.log.Warn("unknown callback", "data", data, "user_id", cb.From.ID)
	}
}

func (b *Bot) showMainMenu(ctx context.Context, cb *models.CallbackQuery) {
	userName := cb.From.FirstName
	if userName == "" {
		userName = cb.From.Username
	}
	if userName == "" {
		userName = "друг"
	}

	text := fmt.Sprintf(
		"<a href='tg://user?id=%d'>%s</a>, добро пожаловать! 🚀\n\n"+
			"Премиум-доступ открывает все функции бота.\n"+
			"Оплата в TON или бесплатно — за приглашённых друзей.\n\n"+
			"Выбери действие 👇",
		cb.From.ID, userName,
	)

	b.editMessage(ctx, cb.Message, text, MainKeyboard())
}

func (b *Bot) profileText(userID int64) string {
	status := "❌ Не активен"
	if until, ok, _ := b.storage.PremiumUntil(userID); ok && until.After(time.Now()) {
		status = fmt.Sprintf("✅ Активен до %s", until.Format("02.01.2006"))
	}

	stats, _ := b.storage.GetReferralStats(userID)

	return fmt.Sprintf(
		"👤 <b>Твой профиль</b>\n\n"+
			"Премиум: <b>%s</b>\n"+
			"Приглашено: <b>%d</b> (оплатили: <b>%d</b>)",
		status, stats.Total, stats.Converted,
	)
}

func (b *Bot) showPremium(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	status := "❌ Не активен"
	if until, ok, _ := b.storage.PremiumUntil(userID); ok && until.After(time.Now()) {
		status = fmt.Sprintf("✅ Активен до %s", until.Format("02.01.2006"))
	}

	text := fmt.Sprintf(
		"💎 <b>Премиум-доступ</b>\n\n"+
			"Статус: <b>%s</b>\n"+
			"Стоимость: <b>%.2f TON</b> за %d дней\n\n"+
			"Повторная оплата продлевает доступ, а не сбрасывает его.",
		status,
		toncenter.NanoToTON(b.cfg.PremiumPriceNano),
		int(b.cfg.PremiumDuration.Hours()/24),
	)

	b.editMessage(ctx, cb.Message, text, PremiumKeyboard())
}

func (b *Bot) showPayInstructions(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	text := fmt.Sprintf(
		"💼 <b>Оплата премиума</b>\n\n"+
			"Переведи ровно <b>%.2f TON</b> на кошелёк:\n\n"+
			"<code>%s</code>\n\n"+
			"⚠️ <b>Важно:</b> укажи комментарий к переводу:\n\n"+
			"<code>premium:%d</code>\n\n"+
			"Без точной суммы и комментария платёж не будет зачислен автоматически.\n"+
			"Зачисление — в течение нескольких минут после подтверждения сети.",
		toncenter.NanoToTON(b.cfg.PremiumPriceNano),
		b.cfg.ServiceWalletAddr,
		userID,
	)

	b.editMessage(ctx, cb.Message, text, PayKeyboard())
}

func (b *Bot) handleCheckPayment(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	if until, ok, _ := b.storage.PremiumUntil(userID); ok && until.After(time.Now()) {
		text := fmt.Sprintf(
			"✅ <b>Премиум активен!</b>\n\nДоступ открыт до <b>%s</b>.",
			until.Format("02.01.2006"),
		)
		b.editMessage(ctx, cb.Message, text, BackKeyboard())
		return
	}

	text := "🔍 <b>Платёж пока не найден.</b>\n\n" +
		"Проверка проходит раз в несколько минут. Если ты только что отправил перевод, подожди и нажми кнопку снова."

	b.editMessage(ctx, cb.Message, text, PayKeyboard())
}

func (b *Bot) showReferrals(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	stats, err := b.storage.GetReferralStats(userID)
	if err != nil {
		b.log.Error("referral stats", "user_id", userID, "error", err)
		return
	}

	claimed := false
	if u, err := b.storage.GetUser(userID); err == nil {
		claimed = u.ReferralBonusClaimed
	}

	link := fmt.Sprintf("https://t.me/%s?start=ref%d", b.cfg.BotUsername, userID)
	bonusDays := int(b.cfg.ReferralBonus.Hours() / 24)
	claimDays := int(b.cfg.ReferralClaimBonus.Hours() / 24)

	lines := []string{
		"🔗 <b>Рефералы</b>",
		"",
		fmt.Sprintf("Твоя ссылка:\n<code>%s</code>", link),
		"",
		fmt.Sprintf("Приглашено: <b>%d</b> (оплатили: <b>%d</b>)", stats.Total, stats.Converted),
		"",
		fmt.Sprintf("• +%d дн. премиума за каждого, кто оплатит", bonusDays),
		fmt.Sprintf("• +%d дн. разово за %d приглашённых", claimDays, b.cfg.ReferralClaimThreshold),
	}
	if claimed {
		lines = append(lines, "", "🎁 Разовый бонус уже получен.")
	}

	canClaim := !claimed && stats.Total >= b.cfg.ReferralClaimThreshold
	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), ReferralKeyboard(canClaim))
}

func (b *Bot) handleClaim(ctx context.Context, cb *models.CallbackQuery) {
	userID := cb.From.ID

	until, err := b.storage.ClaimReferralBonus(userID, b.cfg.ReferralClaimThreshold, b.cfg.ReferralClaimBonus, time.Now())
	switch {
	case errors.Is(err, storage.ErrInsufficientReferrals):
		b.answerAlert(ctx, cb, fmt.Sprintf("Нужно минимум %d приглашённых.", b.cfg.ReferralClaimThreshold))
		return
	case errors.Is(err, storage.ErrBonusAlreadyClaimed):
		b.answerAlert(ctx, cb, "Бонус уже был получен.")
		return
	case err != nil:
		b.log.Error("claim referral bonus", "user_id", userID, "error", err)
		b.answerAlert(ctx, cb, "Ошибка, попробуй позже.")
		return
	}

	b.log.Info("referral bonus claimed", "user_id", userID)

	text := fmt.Sprintf(
		"🎁 <b>Бонус начислен!</b>\n\nПремиум-доступ активен до <b>%s</b>.",
		until.Format("02.01.2006"),
	)
	b.editMessage(ctx, cb.Message, text, BackKeyboard())
}

// --- Admin callbacks ---

func (b *Bot) handleAdminGrant(ctx context.Context, cb *models.CallbackQuery) {
	if !b.cfg.AdminUserIDs[cb.From.ID] {
		return
	}

	b.states.Set(cb.From.ID, StateAwaitGrant, nil)
	b.editMessage(ctx, cb.Message,
		"🎁 Отправь <code>ID пользователя</code> и число дней.\nНапример: <code>123456789 30</code>",
		BackKeyboard(),
	)
}

func (b *Bot) handleAdminRevoke(ctx context.Context, cb *models.CallbackQuery) {
	if !b.cfg.AdminUserIDs[cb.From.ID] {
		return
	}

	b.states.Set(cb.From.ID, StateAwaitRevoke, nil)
	b.editMessage(ctx, cb.Message, "🚫 Отправь <code>ID пользователя</code> для отзыва премиума.", BackKeyboard())
}

func (b *Bot) showAdminStats(ctx context.Context, cb *models.CallbackQuery) {
	if !b.cfg.AdminUserIDs[cb.From.ID] {
		return
	}

	now := time.Now()
	users, _ := b.storage.CountUsers()
	premium, _ := b.storage.CountPremiumUsers(now)
	payments, _ := b.storage.CountProcessedPayments()

	balanceLine := "Баланс кошелька: <i>недоступен</i>"
	if b.cfg.ServiceWalletAddr != "" {
		if acc, err := b.ton.GetAccount(ctx, b.cfg.ServiceWalletAddr); err == nil {
			balanceLine = fmt.Sprintf("Баланс кошелька: <b>%.4f TON</b>",
				toncenter.NanoToTON(toncenter.ParseNano(acc.Balance)))
		} else {
			b.log.Error("fetch wallet balance", "error", err)
		}
	}

	text := fmt.Sprintf(
		"📊 <b>Статистика</b>\n\n"+
			"Пользователей: <b>%d</b>\n"+
			"С премиумом: <b>%d</b>\n"+
			"Платежей зачислено: <b>%d</b>\n"+
			"%s",
		users, premium, payments, balanceLine,
	)

	b.editMessage(ctx, cb.Message, text, AdminKeyboard())
}

func (b *Bot) showUnmatched(ctx context.Context, cb *models.CallbackQuery) {
	if !b.cfg.AdminUserIDs[cb.From.ID] {
		return
	}

	payments, err := b.storage.ListUnmatchedPayments(10)
	if err != nil {
		b.log.Error("list unmatched payments", "error", err)
		return
	}

	if len(payments) == 0 {
		b.editMessage(ctx, cb.Message, "❓ Платежей без распознанного memo нет.", AdminKeyboard())
		return
	}

	lines := []string{"❓ <b>Платежи без распознанного memo</b>", ""}
	for _, p := range payments {
		memo := p.Memo
		if memo == "" {
			memo = "—"
		}
		lines = append(lines, fmt.Sprintf(
			"• <code>%s</code>\n  %.2f TON от %s, memo: <code>%s</code>",
			toncenter.ShortAddr(p.TxHash, 6),
			toncenter.NanoToTON(p.AmountNano),
			toncenter.ShortAddr(toncenter.RawToFriendly(p.SenderAddress), 4),
			memo,
		))
	}
	lines = append(lines, "", "Зачислить вручную: «Выдать премиум».")

	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), AdminKeyboard())
}

// --- Helpers ---

func (b *Bot) answerAlert(ctx context.Context, cb *models.CallbackQuery, text string) {
	b.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
		Text:            text,
		ShowAlert:       true,
	})
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

// SendNotification sends a notification message to a user. Failures are
// the caller's to log; they must never unwind an applied grant.
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}

	_, err := b.bot.SendMessage(ctx, params)
	return err
}
