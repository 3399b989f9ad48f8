/*
config.go - Server configuration

PURPOSE:
  Collects settings from three layers, later layers winning:
    1. .env file in the working directory (optional)
    2. Process environment
    3. Command-line flags

KEYS:
  PORT                 HTTP port (default 8080)           flag -port
  DB_PATH              SQLite path (default rent.db)      flag -db
  JWT_SECRET           HS256 secret for bearer tokens (required)
  CURRENCY             Currency stamped on new payments (default USD)
  CORS_ORIGINS         Comma-separated allowed origins
  REMINDERS_ENABLED    Run the daily reminder job (default true)
  REMINDER_CRON        Cron spec for reminders (default "0 9 * * *")
  REMINDER_DAYS_AHEAD  Remind this many days before due (default 3)

DEV FLAGS:
  -issue-token role:user   Print a bearer token for the user and exit
*/
package config

import (
	"errors"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port              int
	DBPath            string
	JWTSecret         string
	Currency          string
	CORSOrigins       []string
	RemindersEnabled  bool
	ReminderCron      string
	ReminderDaysAhead int

	// IssueToken is "role:user_id" when the dev flag is set.
	IssueToken string
}

var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

// Load reads .env and the environment, then applies flags from args.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] No .env file found, using process environment")
	}

	cfg := &Config{
		Port:              GetEnvInt("PORT", 8080),
		DBPath:            GetEnv("DB_PATH", "rent.db"),
		JWTSecret:         GetEnv("JWT_SECRET"),
		Currency:          GetEnv("CURRENCY", "USD"),
		CORSOrigins:       splitList(GetEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		RemindersEnabled:  GetEnvBool("REMINDERS_ENABLED", true),
		ReminderCron:      GetEnv("REMINDER_CRON", "0 9 * * *"),
		ReminderDaysAhead: GetEnvInt("REMINDER_DAYS_AHEAD", 3),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.IssueToken, "issue-token", "", `print a token for "role:user_id" and exit`)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	return cfg, nil
}

// GetEnv returns the value of key, or the first default when unset.
func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func GetEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[Config] %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return i
}

func GetEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
