package session_test

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/MegaGrindStone/rag-web-ui/internal/models"
	"github.com/MegaGrindStone/rag-web-ui/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionResolve(t *testing.T) {
	s := session.New(discardLogger())

	s.AppendUser("Hello")
	ph := s.AppendPlaceholder()

	if !s.Pending() {
		t.Fatal("Pending() = false after AppendPlaceholder, want true")
	}
	if ph.Content != models.PlaceholderContent || !ph.Pending {
		t.Fatalf("placeholder = %+v, want pending with marker content", ph)
	}

	msg, ok := s.Resolve(ph.ID, "Hi there")
	if !ok {
		t.Fatal("Resolve() = false, want true")
	}
	if msg.Content != "Hi there" || msg.Pending {
		t.Errorf("resolved message = %+v, want resolved content", msg)
	}
	if s.Pending() {
		t.Error("Pending() = true after Resolve, want false")
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(msgs))
	}
	if msgs[1].ID != ph.ID || msgs[1].Content != "Hi there" {
		t.Errorf("Messages()[1] = %+v, want resolved placeholder", msgs[1])
	}
}

func TestSessionResolveGuards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *session.Session) string
	}{
		{
			name: "Unknown id",
			setup: func(s *session.Session) string {
				s.AppendUser("Hello")
				s.AppendPlaceholder()
				return "missing"
			},
		},
		{
			name: "User message",
			setup: func(s *session.Session) string {
				u := s.AppendUser("Hello")
				s.AppendPlaceholder()
				return u.ID
			},
		},
		{
			name: "System notice",
			setup: func(s *session.Session) string {
				return s.AppendSystem("Document received").ID
			},
		},
		{
			name: "Already resolved",
			setup: func(s *session.Session) string {
				ph := s.AppendPlaceholder()
				s.Resolve(ph.ID, "first")
				return ph.ID
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.New(discardLogger())
			id := tt.setup(s)
			before := s.Messages()

			if _, ok := s.Resolve(id, "corrupted"); ok {
				t.Fatal("Resolve() = true, want false")
			}

			after := s.Messages()
			if len(after) != len(before) {
				t.Fatalf("len(Messages()) = %d, want %d", len(after), len(before))
			}
			for i := range before {
				if after[i] != before[i] {
					t.Errorf("Messages()[%d] = %+v, want %+v", i, after[i], before[i])
				}
			}
		})
	}
}

func TestSessionResolveLastAssistant(t *testing.T) {
	s := session.New(discardLogger())

	if _, ok := s.ResolveLastAssistant("nothing"); ok {
		t.Error("ResolveLastAssistant() on empty session = true, want false")
	}

	s.AppendUser("Hello")
	if _, ok := s.ResolveLastAssistant("nothing"); ok {
		t.Error("ResolveLastAssistant() after user message = true, want false")
	}
	if got := s.Messages()[0].Content; got != "Hello" {
		t.Errorf("user message content = %q, want %q", got, "Hello")
	}

	s.AppendPlaceholder()
	msg, ok := s.ResolveLastAssistant("Hi")
	if !ok {
		t.Fatal("ResolveLastAssistant() after placeholder = false, want true")
	}
	if msg.Content != "Hi" {
		t.Errorf("resolved content = %q, want %q", msg.Content, "Hi")
	}
	if s.Pending() {
		t.Error("Pending() = true after resolution, want false")
	}
}

func TestSessionScope(t *testing.T) {
	s := session.New(discardLogger())

	if got := s.CurrentScope(); got != "" {
		t.Fatalf("initial CurrentScope() = %q, want empty", got)
	}

	s.AppendUser("Hello")
	s.SetScope("abc123")
	if got := s.CurrentScope(); got != "abc123" {
		t.Errorf("CurrentScope() = %q, want %q", got, "abc123")
	}

	s.ClearScope()
	if got := s.CurrentScope(); got != "" {
		t.Errorf("CurrentScope() after ClearScope = %q, want empty", got)
	}
	if got := len(s.Messages()); got != 1 {
		t.Errorf("len(Messages()) after ClearScope = %d, want 1", got)
	}
}

func TestSessionMessagesSnapshot(t *testing.T) {
	s := session.New(discardLogger())
	s.AppendUser("Hello")

	msgs := s.Messages()
	msgs[0].Content = "changed"

	if got := s.Messages()[0].Content; got != "Hello" {
		t.Errorf("Messages()[0].Content = %q, want snapshot to be independent", got)
	}
}

func TestSessionAppendPlaceholderWhilePending(t *testing.T) {
	var buf bytes.Buffer
	s := session.New(slog.New(slog.NewTextHandler(&buf, nil)))

	s.AppendUser("Hello")
	first := s.AppendPlaceholder()
	if buf.Len() != 0 {
		t.Fatalf("first placeholder logged %q, want nothing", buf.String())
	}

	s.AppendPlaceholder()
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), first.ID) {
		t.Errorf("log = %q, want an error naming the pending placeholder %s", buf.String(), first.ID)
	}
	if got := len(s.Messages()); got != 3 {
		t.Errorf("len(Messages()) = %d, want 3", got)
	}
}
