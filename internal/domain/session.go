// Package domain contains core domain types for the HintTutor service.
package domain

import (
	"time"
)

// Role tags a transcript message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session holds the hint conversation for one question.
type Session struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Transcript []Message `json:"transcript"`
	HintCount  int       `json:"hint_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Append adds messages to the end of the transcript.
func (s *Session) Append(msgs ...Message) {
	s.Transcript = append(s.Transcript, msgs...)
}

// LastMessage returns the newest transcript entry.
// The second return value is false when the transcript is empty.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Transcript) == 0 {
		return Message{}, false
	}
	return s.Transcript[len(s.Transcript)-1], true
}

// Clone returns a deep copy whose transcript does not share a backing array
// with the receiver.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Transcript = make([]Message, len(s.Transcript))
	copy(c.Transcript, s.Transcript)
	return &c
}

// IdleSince reports whether the session has not been updated since t.
func (s *Session) IdleSince(t time.Time) bool {
	return s.UpdatedAt.Before(t)
}
