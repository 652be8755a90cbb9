package delivery

import (
	"errors"
	"testing"

	"github.com/user/medseek/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotKey types.SessionKey
	var gotMsg string
	reg.Register("telegram", func(key types.SessionKey, message string) error {
		gotKey = key
		gotMsg = message
		return nil
	})

	if err := reg.Deliver("telegram:42:100", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "telegram:42:100" {
		t.Errorf("expected session key %q, got %q", "telegram:42:100", gotKey)
	}
	if gotMsg != "hello" {
		t.Errorf("expected message %q, got %q", "hello", gotMsg)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver("web:abc", "hello")
	if !errors.Is(err, ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestRegistryMatchesWholeSource(t *testing.T) {
	reg := NewRegistry()

	var calls int
	reg.Register("tele", func(types.SessionKey, string) error {
		calls++
		return nil
	})

	if err := reg.Deliver("telegram:1:2", "msg"); err == nil {
		t.Error("expected no match for a partial source name")
	}
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
}

func TestRegistryHandlerError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	reg.Register("telegram", func(types.SessionKey, string) error { return boom })

	if err := reg.Deliver("telegram:1:2", "msg"); !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}
