package main

import (
	"fmt"
	"time"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=100"`
	BufferSize           int           `env:"BUFFER_SIZE,default=64"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	RateLimitInterval    time.Duration `env:"RATE_LIMIT_INTERVAL,default=5s"`
	RateLimitGrace       time.Duration `env:"RATE_LIMIT_GRACE,default=20s"`
	LimiterIdleTTL       time.Duration `env:"LIMITER_IDLE_TTL,default=10m"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=2s"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	CensoredWords        string        `env:"CENSORED_WORDS"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
