package question

import (
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when the catalog has no question for the criteria.
var ErrNotFound = errors.New("no question matches criteria")

// Question is a catalog entry as delivered to a collaboration room.
type Question struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Topic       string `json:"topic"`
	Difficulty  string `json:"difficulty"`
}

// UnmarshalJSON accepts either "id" or the catalog's "_id".
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = Question(raw.plain)
	if q.ID == "" {
		q.ID = raw.MongoID
	}
	return nil
}

// Criteria narrows a random pick. Empty fields are unconstrained.
type Criteria struct {
	Topic      string
	Difficulty string
}
