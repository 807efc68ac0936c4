package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credentials in log output.
const RedactedValue = "[REDACTED]"

// credentialKeys are masked by the handler wherever they appear.
var credentialKeys = map[string]struct{}{
	"authorization": {},
	"bearer":        {},
	"hmac_secret":   {},
	"password":      {},
	"secret":        {},
	"token":         {},
}

// plainKeys are the attributes lendingd logs verbatim.
var plainKeys = map[string]struct{}{
	"asset":      {},
	"component":  {},
	"env":        {},
	"error":      {},
	"issuer":     {},
	"kind":       {},
	"method":     {},
	"module":     {},
	"op":         {},
	"operation":  {},
	"reason":     {},
	"request_id": {},
	"route":      {},
	"service":    {},
	"status":     {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// MaskField returns an attribute whose value is redacted unless the key is
// one lendingd logs verbatim. Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[normalizeKey(key)]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if _, ok := credentialKeys[normalizeKey(attr.Key)]; !ok {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
