package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureRoundTrip(t *testing.T) {
	sig := Sign("order_123", "pay_456", "secret")
	assert.True(t, VerifySignature("order_123", "pay_456", "secret", sig))
}

func TestSignatureRejectsTampering(t *testing.T) {
	sig := Sign("order_123", "pay_456", "secret")

	assert.False(t, VerifySignature("order_999", "pay_456", "secret", sig))
	assert.False(t, VerifySignature("order_123", "pay_999", "secret", sig))
	assert.False(t, VerifySignature("order_123", "pay_456", "other-secret", sig))
	assert.False(t, VerifySignature("order_123", "pay_456", "secret", sig+"00"))
	assert.False(t, VerifySignature("order_123", "pay_456", "secret", ""))
}

func TestSignatureIsHexEncoded(t *testing.T) {
	sig := Sign("a", "b", "c")
	assert.Len(t, sig, 64)
	for _, r := range sig {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}
