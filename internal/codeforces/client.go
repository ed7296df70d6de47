package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codebattle/codebattle/internal/apperr"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Problem is one entry of the problemset catalog.
type Problem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"` // "PROGRAMMING" or "QUESTION"
	Points    float64  `json:"points"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
}

type ProblemSet struct {
	Problems []Problem `json:"problems"`
}

// Submission is one row of a user's submission history.
type Submission struct {
	ID                  int64   `json:"id"`
	ContestID           int     `json:"contestId"`
	CreationTimeSeconds int64   `json:"creationTimeSeconds"`
	Problem             Problem `json:"problem"`
	Verdict             string  `json:"verdict"`
	PassedTestCount     int     `json:"passedTestCount"`
	ProgrammingLanguage string  `json:"programmingLanguage"`
}

// Terminal reports whether the verdict will not change further. A submission
// still being judged has verdict "TESTING" (or none at all).
func (s Submission) Terminal() bool {
	return s.Verdict != "" && s.Verdict != "TESTING"
}

// Client talks to the Codeforces REST API. All requests share one limiter so
// the process as a whole never exceeds the platform's request rate; callers
// are queued, not rejected.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	backoff time.Duration // extra sleep after a remote rate-limit response
}

func NewClient(baseURL string, minInterval time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		backoff: 5 * time.Second,
	}
}

type apiResponse struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperr.ErrUpstreamUnavailable, method, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", apperr.ErrUpstreamUnavailable, method, err)
	}

	if body.Status != "OK" {
		if strings.Contains(body.Comment, "limit exceeded") {
			// Remote throttled us despite the local limiter. Back off before
			// letting the caller retry on the next tick.
			zap.S().Warnf("codeforces rate limit exceeded on %s, backing off", method)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			return fmt.Errorf("%w: rate limit exceeded", apperr.ErrUpstreamUnavailable)
		}
		return fmt.Errorf("codeforces API error: %s", body.Comment)
	}

	return json.Unmarshal(body.Result, out)
}

// ListSubmissions fetches a user's full submission history, most recent first.
func (c *Client) ListSubmissions(ctx context.Context, handle string) ([]Submission, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var subs []Submission
	if err := c.call(ctx, "user.status", params, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// ListProblems fetches the whole problemset catalog, optionally filtered by tags.
func (c *Client) ListProblems(ctx context.Context, tags []string) (*ProblemSet, error) {
	params := url.Values{}
	if len(tags) > 0 {
		params.Set("tags", strings.Join(tags, ";"))
	}

	var set ProblemSet
	if err := c.call(ctx, "problemset.problems", params, &set); err != nil {
		return nil, err
	}
	return &set, nil
}
