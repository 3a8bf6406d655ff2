package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const recvWindow = "5000"

// Signer handles Bybit V5 API authentication signatures
type Signer struct {
	apiKey    string
	apiSecret string
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// GenerateHeaders creates the authentication headers for a request.
// payload is the raw query string for GET requests or the JSON body for
// POST requests (empty if none).
//
// Signature input: timestamp + apiKey + recvWindow + payload
func (s *Signer) GenerateHeaders(payload string) map[string]string {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())

	sign := computeHmacSha256(timestamp+s.apiKey+recvWindow+payload, s.apiSecret)

	return map[string]string{
		"X-BAPI-API-KEY":     s.apiKey,
		"X-BAPI-SIGN":        sign,
		"X-BAPI-TIMESTAMP":   timestamp,
		"X-BAPI-RECV-WINDOW": recvWindow,
		"Content-Type":       "application/json",
	}
}

// SignWebSocketAuth produces the signature for the private stream auth
// frame: hex(hmac_sha256(secret, "GET/realtime" + expires)).
func (s *Signer) SignWebSocketAuth(expires int64) string {
	return computeHmacSha256(fmt.Sprintf("GET/realtime%d", expires), s.apiSecret)
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
