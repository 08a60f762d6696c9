package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/MEKXH/warden/internal/approval"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/policy"
)

func TestNewTelegram_SeedsChatsFromAllowList(t *testing.T) {
	cfg := &config.TelegramConfig{
		Token:     "test",
		AllowFrom: []string{"12345", "not-a-number", " 678 "},
	}
	tg := NewTelegram(cfg, nil)

	if _, ok := tg.chats[12345]; !ok {
		t.Fatal("expected numeric allow entry to seed a chat")
	}
	if _, ok := tg.chats[678]; !ok {
		t.Fatal("expected trimmed numeric allow entry to seed a chat")
	}
	if len(tg.chats) != 2 {
		t.Fatalf("expected 2 seeded chats, got %d", len(tg.chats))
	}
	if !tg.allow["not-a-number"] {
		t.Fatal("non-numeric entries still belong to the allow list")
	}
}

func TestFormatPending(t *testing.T) {
	if got := formatPending(nil); !strings.Contains(got, "No pending") {
		t.Fatalf("unexpected empty format: %q", got)
	}

	pending := []approval.Request{
		{
			ID:          "req-1",
			Tool:        "write_file",
			Risk:        policy.RiskMedium,
			Description: "write_file: /srv/data/out.txt",
			CreatedAt:   time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
		},
	}
	got := formatPending(pending)
	if !strings.Contains(got, "req-1") || !strings.Contains(got, "medium") {
		t.Fatalf("missing request detail: %q", got)
	}
	if !strings.Contains(got, "1 pending") {
		t.Fatalf("missing count: %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghijkl"); got != "abcdefgh" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID short input = %q", got)
	}
}
