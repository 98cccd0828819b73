package firestore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// encodeListToken packs an order-by value and document ID into an opaque cursor.
func encodeListToken(value, docID string) string {
	payload := fmt.Sprintf("%s|%s", value, docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (string, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("invalid page token: %w", err)
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", errors.New("invalid page token structure")
	}
	return parts[0], parts[1], nil
}

// encodeTimeToken packs a timestamp cursor for time-ordered listings.
func encodeTimeToken(ts time.Time, docID string) string {
	return encodeListToken(ts.UTC().Format(time.RFC3339Nano), docID)
}

func decodeTimeToken(token string) (time.Time, string, error) {
	value, docID, err := decodeListToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return ts, docID, nil
}

func chooseTime(primary time.Time, fallback time.Time) time.Time {
	if !primary.IsZero() {
		return primary.UTC()
	}
	if !fallback.IsZero() {
		return fallback.UTC()
	}
	return time.Time{}
}

func normalizeTimePointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	ts := value.UTC()
	return &ts
}

func normalizeStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
