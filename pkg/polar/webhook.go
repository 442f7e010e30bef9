package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultWebhookTolerance bounds how stale a webhook timestamp may be.
const DefaultWebhookTolerance = 5 * time.Minute

const webhookSecretPrefix = "whsec_"

// VerifyWebhookSignature checks the standard-webhooks HMAC over
// "{id}.{timestamp}.{payload}". The signature header may carry several
// space-separated candidates ("v1,<base64>"); any match passes.
func VerifyWebhookSignature(secret, msgID, timestamp string, payload []byte, signatureHeader string) bool {
	if secret == "" || msgID == "" || timestamp == "" || signatureHeader == "" {
		return false
	}

	key, err := decodeWebhookSecret(secret)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	for _, candidate := range strings.Fields(signatureHeader) {
		parts := strings.SplitN(candidate, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(parts[1])) {
			return true
		}
	}
	return false
}

// WebhookTimestampFresh reports whether the unix-seconds timestamp is within
// tolerance of now, rejecting replayed deliveries.
func WebhookTimestampFresh(timestamp string, now time.Time, tolerance time.Duration) bool {
	secs, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return false
	}
	diff := now.Sub(time.Unix(secs, 0))
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func decodeWebhookSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, webhookSecretPrefix)
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, nil
	}
	// Some dashboards hand out the raw secret without base64 encoding.
	return []byte(raw), nil
}
