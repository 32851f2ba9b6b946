// Package session owns the daemon's conversation state: the ordered
// user/assistant history and the exact-match answer cache derived from
// it. All mutation goes through synchronized methods; the remote
// generation call is never made while a lock is held.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"bashbuddy/internal/protocol"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// entry is a history turn plus the internal id used to pair an in-flight
// ask's assistant turn with its user turn.
type entry struct {
	protocol.Turn
	id ulid.ULID
}

// Session holds the single shared conversation of a daemon instance.
//
// The epoch counter invalidates in-flight asks across a reset: Begin
// captures the current epoch, Reset bumps it, and Complete drops the
// assistant turn when the epochs no longer match.
type Session struct {
	mu    sync.RWMutex
	turns []entry
	epoch uint64
}

// Ticket identifies an in-flight ask between Begin and Complete.
type Ticket struct {
	epoch uint64
	id    ulid.ULID
}

// CachedAnswer is a previously recorded structured answer re-parsed from
// an assistant turn.
type CachedAnswer struct {
	Command     string
	Explanation string
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// Begin appends the user turn for a fresh ask and returns a ticket for
// completing it. Appending before the remote call keeps an audit trail
// even if generation crashes.
func (s *Session) Begin(message string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ulid.Make()
	s.turns = append(s.turns, entry{
		Turn: protocol.Turn{Role: RoleUser, Content: message},
		id:   id,
	})
	return Ticket{epoch: s.epoch, id: id}
}

// Complete records the assistant turn for an ask started at Begin. The
// turn is placed directly after its paired user turn, so overlapping
// asks cannot interleave their pairs. If a reset happened since Begin,
// the result is discarded and Complete reports false.
func (s *Session) Complete(ticket Ticket, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket.epoch != s.epoch {
		return false
	}

	at := -1
	for i := range s.turns {
		if s.turns[i].id == ticket.id {
			at = i + 1
			break
		}
	}
	if at < 0 {
		return false
	}

	s.turns = append(s.turns, entry{})
	copy(s.turns[at+1:], s.turns[at:])
	s.turns[at] = entry{
		Turn: protocol.Turn{Role: RoleAssistant, Content: content},
		id:   ulid.Make(),
	}
	return true
}

// Reset empties the history atomically and invalidates in-flight asks.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.epoch++
}

// Snapshot returns a copy of the history in insertion order.
func (s *Session) Snapshot() []protocol.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Turn, len(s.turns))
	for i := range s.turns {
		out[i] = s.turns[i].Turn
	}
	return out
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Lookup scans the history for a prior user turn whose trimmed,
// case-folded text equals query and returns the structured answer parsed
// from the paired assistant turn. Plain-text assistant turns (no
// command) are not cache material.
func (s *Session) Lookup(query string) (CachedAnswer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := foldQuery(query)
	for i := 0; i+1 < len(s.turns); i++ {
		if s.turns[i].Role != RoleUser || foldQuery(s.turns[i].Content) != want {
			continue
		}
		if s.turns[i+1].Role != RoleAssistant {
			continue
		}
		answer, ok := ParseSuggestion(s.turns[i+1].Content)
		if ok {
			return answer, true
		}
	}
	return CachedAnswer{}, false
}

func foldQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// EncodeSuggestion renders a structured answer as assistant-turn text.
// Lookup re-parses this encoding on cache hits.
func EncodeSuggestion(command, explanation string) string {
	return fmt.Sprintf("Command: %s\nExplanation: %s", command, explanation)
}

// ParseSuggestion extracts the command and explanation from an
// assistant turn produced by EncodeSuggestion. It reports false when the
// turn carries no command (a plain-text answer).
func ParseSuggestion(content string) (CachedAnswer, bool) {
	if !strings.Contains(content, "Command:") || !strings.Contains(content, "Explanation:") {
		return CachedAnswer{}, false
	}

	var answer CachedAnswer
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "Command:"):
			answer.Command = strings.TrimSpace(strings.TrimPrefix(line, "Command:"))
		case strings.HasPrefix(line, "Explanation:"):
			answer.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "Explanation:"))
		}
	}
	if answer.Command == "" {
		return CachedAnswer{}, false
	}
	return answer, true
}
