package model

import "time"

// Session is the per-account view rendered by the dashboard and used to label
// log lines.
type Session struct {
	Account  string
	AccIdx   int
	Username string
	Proxy    string

	Balance     string
	FarmBalance string
	SyncedAt    time.Time
	Tickets     int
	FarmEnd     time.Time
	NextDaily   time.Time
	GamesPlayed int
	GamesWon    int

	DailyStatus string
	FarmStatus  string
	GameStatus  string
	AuthStatus  string
}

func (s *Session) LoggingSession() *Session {
	if s == nil {
		return nil
	}
	return s
}
