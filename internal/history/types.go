package history

import "time"

// Record is what one participant worked on in a finished session.
type Record struct {
	UserID            string    `json:"userId"`
	Title             string    `json:"title"`
	Topic             string    `json:"topic"`
	Difficulty        string    `json:"difficulty"`
	Description       string    `json:"description"`
	SubmittedSolution string    `json:"submittedSolution"`
	Date              time.Time `json:"date"`
}
