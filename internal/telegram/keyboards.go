package telegram

import "github.com/go-telegram/bot/models"

// MainKeyboard is the main menu
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💎 Премиум", CallbackData: "premium"},
				{Text: "🔗 Рефералы", CallbackData: "referral"},
			},
			{
				{Text: "👤 Профиль", CallbackData: "me"},
			},
		},
	}
}

// PremiumKeyboard is shown under the premium menu
func PremiumKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🚀 Оплатить", CallbackData: "pay"},
			},
			{
				{Text: "🔙 Назад", CallbackData: "back"},
			},
		},
	}
}

// PayKeyboard is shown under the payment instructions
func PayKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔄 Проверить оплату", CallbackData: "check_payment"},
			},
			{
				{Text: "🔙 Назад", CallbackData: "premium"},
			},
		},
	}
}

// ReferralKeyboard is shown under the referral menu
func ReferralKeyboard(canClaim bool) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	if canClaim {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "🎁 Забрать бонус", CallbackData: "claim"},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "🔙 Назад", CallbackData: "back"},
	})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BackKeyboard is a single back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔙 Назад", CallbackData: "back"},
			},
		},
	}
}

// AdminKeyboard is the admin panel
func AdminKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🎁 Выдать премиум", CallbackData: "admin_grant"},
				{Text: "🚫 Отозвать", CallbackData: "admin_revoke"},
			},
			{
				{Text: "📊 Статистика", CallbackData: "admin_stats"},
				{Text: "❓ Без memo", CallbackData: "admin_unmatched"},
			},
			{
				{Text: "🔙 Назад", CallbackData: "back"},
			},
		},
	}
}
