package utils

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

func RandomAlphabetString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// TruncateString cuts text down to at most limit runes, replacing the tail
// with "..." when anything was removed.
func TruncateString(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimRight(string(runes[:limit-3]), " \t\n") + "..."
}

func IsProdEnv() bool {
	return os.Getenv("BOARDSUM_ENV") == "prod"
}

// GetEnvString is a case insensitive os.Getenv with default fallback.
func GetEnvString(key string, fallback string) string {
	if value := getenvCasefold(key); value != "" {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	value := getenvCasefold(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func GetEnvBool(key string, fallback bool) bool {
	value := getenvCasefold(key)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

func getenvCasefold(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	target := strings.ToLower(key)
	for _, pair := range os.Environ() {
		idx := strings.Index(pair, "=")
		if idx < 0 {
			continue
		}
		if strings.ToLower(pair[:idx]) == target {
			return pair[idx+1:]
		}
	}
	return ""
}
