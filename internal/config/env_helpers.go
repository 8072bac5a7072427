package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "DASHSYNC_"

func getenv(key, def string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return def
}

func setStringFromEnv(key string, setter func(string)) {
	if v := strings.TrimSpace(getenv(key, "")); v != "" {
		setter(v)
	}
}

func setIntFromEnv(key string, setter func(int)) {
	if v := getenv(key, ""); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			setter(n)
		}
	}
}

func setFloatFromEnv(key string, setter func(float64)) {
	if v := getenv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			setter(f)
		}
	}
}

// setDurationFromEnv accepts Go durations ("5s") or bare seconds ("5").
func setDurationFromEnv(key string, setter func(time.Duration)) {
	v := strings.TrimSpace(getenv(key, ""))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		setter(d)
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		setter(time.Duration(n) * time.Second)
	}
}

func setToggleFromEnv(key string, setter func(bool)) {
	v := strings.ToLower(strings.TrimSpace(getenv(key, "")))
	if v == "" {
		return
	}
	switch v {
	case "1", "true", "yes", "on":
		setter(true)
	case "0", "false", "no", "off":
		setter(false)
	}
}
