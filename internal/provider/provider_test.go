package provider

import (
	"context"
	"testing"

	"github.com/MEKXH/warden/internal/config"
)

func TestNewChatModel_NoProvider(t *testing.T) {
	cfg := config.DefaultConfig()

	_, err := NewChatModel(context.Background(), cfg)
	if err == nil {
		t.Error("expected error when no provider configured")
	}
}
