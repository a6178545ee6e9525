package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks gateway HMAC-SHA256 signatures.
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewSigner(keySecret, webhookSecret string) *Signer {
	if webhookSecret == "" {
		webhookSecret = keySecret
	}
	return &Signer{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

// CallbackSignature is hex(HMAC-SHA256(key secret, orderID + "|" + paymentID)).
func (s *Signer) CallbackSignature(orderID, paymentID string) string {
	return sign(s.keySecret, []byte(orderID+"|"+paymentID))
}

// VerifyCallback compares in constant time.
func (s *Signer) VerifyCallback(orderID, paymentID, signature string) bool {
	return equal(s.CallbackSignature(orderID, paymentID), signature)
}

// WebhookSignature signs the raw webhook body with the webhook secret.
func (s *Signer) WebhookSignature(body []byte) string {
	return sign(s.webhookSecret, body)
}

func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	return equal(s.WebhookSignature(body), signature)
}

func sign(secret, msg []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func equal(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
