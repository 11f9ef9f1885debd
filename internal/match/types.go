package match

import (
	"errors"
	"strings"
	"time"

	"github.com/gokatarajesh/peerprep/internal/match/queue"
	"github.com/gokatarajesh/peerprep/pkg/http/ws"
)

// ErrInvalidCriteria is returned for find-match requests that cannot match anything.
var ErrInvalidCriteria = errors.New("invalid match criteria")

// Criteria is what a user asks for when searching for a partner.
type Criteria struct {
	UserID       string
	Email        string
	Difficulties []string
	Topics       []string
}

// normalize trims entries, drops blanks and duplicates, keeping first-seen order.
func normalize(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// toMatchFoundPayload converts a queue match into its wire form.
func toMatchFoundPayload(m queue.Match) ws.MatchFoundPayload {
	return ws.MatchFoundPayload{
		RoomID:       m.RoomID,
		User1:        ws.MatchUser{UserID: m.User1.UserID, Email: m.User1.Email},
		User2:        ws.MatchUser{UserID: m.User2.UserID, Email: m.User2.Email},
		Difficulties: m.Difficulties,
		Topics:       m.Topics,
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
