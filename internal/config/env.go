package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Get reads key from the environment. An unset key falls back to the
// trimmed contents of the file named by key_FILE, then to def.
func Get(key, def string) string {
	if v, ok := raw(key); ok {
		return v
	}
	return def
}

func raw(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// parsed returns parse(Get(key)) or def when the key is unset or malformed.
func parsed[T any](key string, def T, parse func(string) (T, error)) T {
	v, ok := raw(key)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func GetInt(key string, def int) int {
	return parsed(key, def, strconv.Atoi)
}

func GetFloat(key string, def float64) float64 {
	return parsed(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

var errNotBool = errors.New("not a boolean")

// GetBool accepts 1/t/true/y/yes and 0/f/false/n/no in any case.
func GetBool(key string, def bool) bool {
	return parsed(key, def, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "1", "t", "true", "y", "yes":
			return true, nil
		case "0", "f", "false", "n", "no":
			return false, nil
		}
		return false, errNotBool
	})
}

// ParseDuration extends time.ParseDuration with whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if days, ok := strings.CutSuffix(s, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func GetDuration(key string, def time.Duration) time.Duration {
	return parsed(key, def, ParseDuration)
}
