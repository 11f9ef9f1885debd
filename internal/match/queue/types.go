package queue

import "time"

// Request is a pending search for a practice partner.
type Request struct {
	UserID       string
	Email        string
	Difficulties []string
	Topics       []string
	ConnectionID string
	SubmittedAt  time.Time
}

// User is the public identity exposed in a Match.
type User struct {
	UserID string
	Email  string
}

// Match is the result of pairing two requests. Difficulties and Topics hold
// the intersections of both requests and are never empty.
type Match struct {
	RoomID       string
	User1        User
	User2        User
	Difficulties []string
	Topics       []string
	CreatedAt    time.Time
}

// Pairing couples a Match with the queued request that was consumed, so the
// caller can notify the partner's connection.
type Pairing struct {
	Match   Match
	Partner Request
}
