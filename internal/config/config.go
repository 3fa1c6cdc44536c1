// Package config reads server settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"topthat/internal/game"
)

type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	RedisURL   string
	HistoryKey string

	MaxPlayers int
	Timing     game.Timing
	Seed       int64

	SweepInterval time.Duration
	EmptyTimeout  time.Duration
	StaleTimeout  time.Duration
}

// Load reads files (default ".env") if present, then the environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	def := game.DefaultTiming()
	c := Config{
		Port:       str("PORT", "8080"),
		LogLevel:   str("LOG_LEVEL", "info"),
		LogFormat:  str("LOG_FORMAT", "text"),
		RedisURL:   str("REDIS_URL", ""),
		HistoryKey: str("HISTORY_KEY", "topthat:actions"),
	}
	var err error
	get := func(key string, d time.Duration) time.Duration {
		if err != nil {
			return d
		}
		var v time.Duration
		v, err = dur(key, d)
		return v
	}
	c.Timing = game.Timing{
		ComputerDelay:        get("CPU_TURN_DELAY", def.ComputerDelay),
		ComputerSpecialDelay: get("CPU_SPECIAL_DELAY", def.ComputerSpecialDelay),
		RejoinResumeDelay:    get("POST_REJOIN_BOT_DELAY", def.RejoinResumeDelay),
		StartupLock:          get("STARTUP_LOCK", def.StartupLock),
		ShutdownGrace:        get("SHUTDOWN_GRACE", def.ShutdownGrace),
		BroadcastThrottle:    get("BROADCAST_THROTTLE", def.BroadcastThrottle),
	}
	c.SweepInterval = get("SWEEP_INTERVAL", 5*time.Minute)
	c.EmptyTimeout = get("EMPTY_ROOM_TIMEOUT", 10*time.Minute)
	c.StaleTimeout = get("STALE_ROOM_TIMEOUT", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}
	if c.MaxPlayers, err = integer("MAX_PLAYERS", game.DefaultMaxPlayers); err != nil {
		return Config{}, err
	}
	if c.MaxPlayers < 2 {
		return Config{}, fmt.Errorf("config: MAX_PLAYERS must be at least 2")
	}
	seed, err := integer("RNG_SEED", 0)
	if err != nil {
		return Config{}, err
	}
	c.Seed = int64(seed)
	if c.SweepInterval <= 0 {
		return Config{}, fmt.Errorf("config: SWEEP_INTERVAL must be positive")
	}
	return c, nil
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func dur(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", key)
	}
	return d, nil
}

func integer(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
