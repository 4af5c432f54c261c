package refine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentbrowse/core/internal/config"
)

func TestRefineDisabledPassesThrough(t *testing.T) {
	svc := NewService(config.AIConfig{Enable: false}, zap.NewNop())

	result, err := svc.Refine(context.Background(), "  book a flight to delhi  ")
	require.NoError(t, err)

	assert.Equal(t, "book a flight to delhi", result.Original)
	assert.Equal(t, "book a flight to delhi", result.Refined)
	assert.Empty(t, result.Model)
}

func TestRefineWithoutAPIKeyPassesThrough(t *testing.T) {
	svc := NewService(config.AIConfig{Enable: true, APIKey: "  "}, zap.NewNop())

	assert.False(t, svc.Enabled())

	result, err := svc.Refine(context.Background(), "check my order status")
	require.NoError(t, err)
	assert.Equal(t, "check my order status", result.Refined)
}

func TestEnabledRequiresKey(t *testing.T) {
	svc := NewService(config.AIConfig{Enable: true, APIKey: "sk-test"}, zap.NewNop())
	assert.True(t, svc.Enabled())
}
