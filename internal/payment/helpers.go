package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

func decodeMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		val, ok := m[key]
		if !ok || val == nil {
			continue
		}
		switch v := val.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		val, ok := m[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return strings.EqualFold(v, "true") || v == "1"
		}
	}
	return false
}

// nestedMap walks a path of keys through nested JSON objects.
func nestedMap(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		val, ok := current[key]
		if !ok {
			return nil
		}
		next, ok := val.(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func hmacSHA256Hex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalSignature compares two hex signatures in constant time. Malformed
// hex on either side compares unequal.
func equalSignature(got, want string) bool {
	gotBytes, err := hex.DecodeString(strings.TrimSpace(strings.ToLower(got)))
	if err != nil {
		return false
	}
	wantBytes, err := hex.DecodeString(strings.TrimSpace(strings.ToLower(want)))
	if err != nil {
		return false
	}
	return hmac.Equal(gotBytes, wantBytes)
}
