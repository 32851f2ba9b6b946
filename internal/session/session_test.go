package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestBeginComplete(t *testing.T) {
	s := New()

	ticket := s.Begin("list files")
	if s.Len() != 1 {
		t.Fatalf("expected 1 turn after Begin, got %d", s.Len())
	}
	if !s.Complete(ticket, EncodeSuggestion("ls", "lists files")) {
		t.Fatal("Complete rejected a valid ask")
	}

	turns := s.Snapshot()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[1].Role != RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", turns[0].Role, turns[1].Role)
	}
}

func TestResetClearsHistory(t *testing.T) {
	s := New()
	ticket := s.Begin("list files")
	s.Complete(ticket, EncodeSuggestion("ls", "lists files"))

	s.Reset()

	if s.Len() != 0 {
		t.Errorf("expected empty history after reset, got %d turns", s.Len())
	}
	if len(s.Snapshot()) != 0 {
		t.Error("snapshot not empty after reset")
	}
}

// A reset issued while an ask is in flight must invalidate that ask's
// eventual completion instead of appending to the fresh history.
func TestResetInvalidatesInFlightAsk(t *testing.T) {
	s := New()
	ticket := s.Begin("list files")

	s.Reset()

	if s.Complete(ticket, EncodeSuggestion("ls", "lists files")) {
		t.Fatal("Complete accepted a result across a reset")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty history, got %d turns", s.Len())
	}
}

func TestLookupCaseAndWhitespaceFolding(t *testing.T) {
	s := New()
	ticket := s.Begin("list files")
	s.Complete(ticket, EncodeSuggestion("ls", "lists files in the current directory"))

	answer, ok := s.Lookup("  LIST FILES ")
	if !ok {
		t.Fatal("expected cache hit for case/whitespace variant")
	}
	if answer.Command != "ls" {
		t.Errorf("expected command 'ls', got %q", answer.Command)
	}
	if answer.Explanation != "lists files in the current directory" {
		t.Errorf("unexpected explanation %q", answer.Explanation)
	}
}

func TestLookupMiss(t *testing.T) {
	s := New()
	ticket := s.Begin("list files")
	s.Complete(ticket, EncodeSuggestion("ls", "lists files"))

	if _, ok := s.Lookup("show disk usage"); ok {
		t.Fatal("unexpected cache hit")
	}
}

// Plain-text assistant turns carry no command and must not be served
// from the cache.
func TestLookupSkipsPlainTextAnswers(t *testing.T) {
	s := New()
	ticket := s.Begin("what is a shell")
	s.Complete(ticket, "A shell is a command interpreter.")

	if _, ok := s.Lookup("what is a shell"); ok {
		t.Fatal("plain-text answer must not be cached")
	}
}

func TestLookupUnpairedUserTurn(t *testing.T) {
	s := New()
	s.Begin("list files") // crash mid-generation: no assistant turn

	if _, ok := s.Lookup("list files"); ok {
		t.Fatal("unpaired user turn must not produce a cache hit")
	}
}

func TestParseSuggestion(t *testing.T) {
	answer, ok := ParseSuggestion("Command: du -sh *\nExplanation: shows sizes")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if answer.Command != "du -sh *" || answer.Explanation != "shows sizes" {
		t.Errorf("unexpected parse result %+v", answer)
	}

	if _, ok := ParseSuggestion("no structure here"); ok {
		t.Error("expected parse failure for plain text")
	}
	if _, ok := ParseSuggestion("Command:\nExplanation: empty command"); ok {
		t.Error("expected parse failure for empty command")
	}
}

// Overlapping asks must never interleave their user/assistant pairs.
func TestConcurrentAsksPreservePairing(t *testing.T) {
	s := New()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := fmt.Sprintf("query %d", i)
			ticket := s.Begin(query)
			s.Complete(ticket, EncodeSuggestion(fmt.Sprintf("cmd%d", i), query))
		}(i)
	}
	wg.Wait()

	turns := s.Snapshot()
	if len(turns) != 2*n {
		t.Fatalf("expected %d turns, got %d", 2*n, len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != RoleUser {
			t.Fatalf("turn %d: expected user, got %s", i, turns[i].Role)
		}
		if turns[i+1].Role != RoleAssistant {
			t.Fatalf("turn %d: expected assistant, got %s", i+1, turns[i+1].Role)
		}
		// The assistant turn must answer the user turn it follows.
		answer, ok := ParseSuggestion(turns[i+1].Content)
		if !ok {
			t.Fatalf("turn %d: unparseable assistant turn", i+1)
		}
		if answer.Explanation != turns[i].Content {
			t.Fatalf("turn %d: pairing corrupted: user %q answered by %q",
				i, turns[i].Content, answer.Explanation)
		}
	}
}
