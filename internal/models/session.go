package models

import "time"

// Session represents one client's participation in one collaboration room.
// EndedAt stays nil while the session is active; once set it is never
// overwritten (closing a session is idempotent).
type Session struct {
	ID        string     `json:"id"`
	RoomID    string     `json:"roomId"`
	Username  string     `json:"username"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// Active reports whether the session has not been closed yet.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}
