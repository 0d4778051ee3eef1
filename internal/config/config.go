package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string

	// TonCenter
	TonCenterAPIKey  string
	TonCenterBaseURL string

	// Database
	DBPath string

	// Premium
	ServiceWalletAddr string
	PremiumPriceNano  int64
	PremiumDuration   time.Duration
	PollInterval      time.Duration
	FetchLimit        int

	// Referrals
	ReferralBonus          time.Duration
	ReferralClaimThreshold int
	ReferralClaimBonus     time.Duration

	// Admin
	AdminUserIDs map[int64]bool

	// Web
	WebPort int
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "leo_premium_bot"),

		// TonCenter
		TonCenterAPIKey:  getEnv("TONCENTER_API_KEY", ""),
		TonCenterBaseURL: strings.TrimSuffix(getEnv("TONCENTER_BASE_URL", "https://toncenter.com/api/v3"), "/"),

		// Database
		DBPath: getEnv("DB_PATH", "./premium.db"),

		// Premium
		ServiceWalletAddr: getEnv("SERVICE_WALLET_ADDR", ""),
		PremiumPriceNano:  getEnvInt64("PREMIUM_PRICE_NANO", 20_000_000), // 0.02 TON
		PremiumDuration:   getEnvDays("PREMIUM_DURATION_DAYS", 30),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Minute),
		FetchLimit:        getEnvInt("FETCH_LIMIT", 50),

		// Referrals
		ReferralBonus:          getEnvDays("REFERRAL_BONUS_DAYS", 3),
		ReferralClaimThreshold: getEnvInt("REFERRAL_CLAIM_THRESHOLD", 3),
		ReferralClaimBonus:     getEnvDays("REFERRAL_CLAIM_BONUS_DAYS", 7),

		// Web
		WebPort: getEnvInt("WEB_PORT", 8080),
	}

	// Parse admin user IDs
	cfg.AdminUserIDs = make(map[int64]bool)
	adminIDs := getEnv("ADMIN_USER_IDS", "")
	for _, idStr := range strings.Split(adminIDs, ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.AdminUserIDs[id] = true
		}
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvDays(key string, defaultDays int) time.Duration {
	days := getEnvInt(key, defaultDays)
	return time.Duration(days) * 24 * time.Hour
}
