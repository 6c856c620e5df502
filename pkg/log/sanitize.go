package log

import (
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "auth", "authorization",
	"credential", "private_key", "privatekey", "mnemonic",
}

// SanitizeField checks if the key contains sensitive keywords and sanitizes the value
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	// Signatures are not secret but are long and noisy
	if strings.Contains(lowerKey, "signature") {
		return shortenHex(value)
	}

	return value
}

// sanitizeToken masks secret values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// shortenHex keeps the first 10 and last 8 characters of long hex strings.
func shortenHex(value string) string {
	if len(value) <= 24 {
		return value
	}
	return value[:10] + "..." + value[len(value)-8:]
}
