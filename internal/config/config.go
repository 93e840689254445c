package config

import (
	"os"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Scanner data directory - every JSON cache file lives under it
	DataDir          string
	CookieFile       string
	CraftOptionsFile string
	AsfFile          string
	ReportXlsx       string
	UserAgent        string

	// 是否带登录态访问市场接口（影响限速档位）
	Authenticated bool
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DataDir:          getEnv("DATA_DIR", "data"),
		CookieFile:       getEnv("COOKIE_FILE", "cookies.json"),
		CraftOptionsFile: getEnv("CRAFT_OPTIONS_FILE", "craft_options.txt"),
		AsfFile:          getEnv("ASF_FILE", "asf_commands.txt"),
		ReportXlsx:       getEnv("REPORT_XLSX", "arbitrage_report.xlsx"),
		UserAgent:        getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"),

		Authenticated: getEnv("STEAM_AUTHENTICATED", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
