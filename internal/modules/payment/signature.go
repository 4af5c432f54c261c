package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the checkout signature over "orderID|paymentID" with the
// gateway key secret, hex encoded.
func Sign(orderID, paymentID, keySecret string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a client-supplied signature in constant time.
func VerifySignature(orderID, paymentID, keySecret, signature string) bool {
	expected := Sign(orderID, paymentID, keySecret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
