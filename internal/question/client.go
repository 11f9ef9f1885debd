package question

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client fetches random questions from the question service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a catalog client. A nil httpClient gets one with the given timeout.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:4003"
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Random returns one question matching every non-empty field of c.
func (c *Client) Random(ctx context.Context, criteria Criteria) (Question, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+randomPath(criteria), nil)
	if err != nil {
		return Question{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Question{}, fmt.Errorf("question service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Question{}, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return Question{}, fmt.Errorf("question service non-2xx: %d", resp.StatusCode)
	}

	var q Question
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return Question{}, fmt.Errorf("decode question: %w", err)
	}
	if q.Title == "" {
		return Question{}, fmt.Errorf("question service returned an empty question")
	}
	return q, nil
}

func randomPath(c Criteria) string {
	var b strings.Builder
	b.WriteString("/questions/random")
	if c.Topic != "" {
		b.WriteString("/topic/")
		b.WriteString(url.PathEscape(c.Topic))
	}
	if c.Difficulty != "" {
		b.WriteString("/difficulty/")
		b.WriteString(url.PathEscape(c.Difficulty))
	}
	return b.String()
}
