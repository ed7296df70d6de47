package codeforces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/codebattle/codebattle/internal/apperr"
)

// newTestClient points a client with a tiny request interval at a stub server.
func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(srv.URL, time.Millisecond)
	c.backoff = time.Millisecond
	return c, srv
}

func TestListSubmissions(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user.status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("handle"); got != "tourist" {
			t.Errorf("unexpected handle %q", got)
		}
		w.Write([]byte(`{"status":"OK","result":[
			{"id":42,"contestId":100,"creationTimeSeconds":1700000000,
			 "problem":{"contestId":100,"index":"A","name":"Sum","type":"PROGRAMMING","rating":800,"tags":["math"]},
			 "verdict":"OK","passedTestCount":20,"programmingLanguage":"GNU C++17"}
		]}`))
	})
	defer srv.Close()

	subs, err := c.ListSubmissions(context.Background(), "tourist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	sub := subs[0]
	if sub.ID != 42 || sub.Verdict != "OK" || sub.PassedTestCount != 20 {
		t.Errorf("bad submission: %+v", sub)
	}
	if sub.Problem.ContestID != 100 || sub.Problem.Index != "A" || sub.Problem.Rating != 800 {
		t.Errorf("bad problem: %+v", sub.Problem)
	}
}

func TestListProblems(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/problemset.problems" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("tags"); got != "dp;graphs" {
			t.Errorf("unexpected tags %q", got)
		}
		w.Write([]byte(`{"status":"OK","result":{"problems":[
			{"contestId":1,"index":"B","name":"Paths","type":"PROGRAMMING","rating":1400,"tags":["dp","graphs"]}
		]}}`))
	})
	defer srv.Close()

	set, err := c.ListProblems(context.Background(), []string{"dp", "graphs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Problems) != 1 || set.Problems[0].Rating != 1400 {
		t.Fatalf("bad problem set: %+v", set)
	}
}

func TestAPIErrorComment(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","comment":"handle: User with handle nobody not found"}`))
	})
	defer srv.Close()

	_, err := c.ListSubmissions(context.Background(), "nobody")
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Error("an ordinary API error is not an availability problem")
	}
}

func TestRemoteRateLimitBacksOff(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","comment":"Call limit exceeded"}`))
	})
	defer srv.Close()

	_, err := c.ListSubmissions(context.Background(), "tourist")
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream-unavailable, got %v", err)
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused from here on
	c := NewClient(srv.URL, time.Millisecond)

	_, err := c.ListSubmissions(context.Background(), "tourist")
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream-unavailable, got %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway timeout</html>`))
	})
	defer srv.Close()

	_, err := c.ListProblems(context.Background(), nil)
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream-unavailable, got %v", err)
	}
}

func TestRequestsAreSpaced(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		w.Write([]byte(`{"status":"OK","result":[]}`))
	}))
	defer srv.Close()

	interval := 50 * time.Millisecond
	c := NewClient(srv.URL, interval)

	for i := 0; i < 3; i++ {
		if _, err := c.ListSubmissions(context.Background(), "tourist"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < interval-5*time.Millisecond {
			t.Errorf("requests %d and %d only %v apart, want at least %v", i-1, i, gap, interval)
		}
	}
}

func TestContextCancelStopsWaiting(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","result":[]}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListSubmissions(ctx, "tourist")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	cases := []struct {
		verdict string
		want    bool
	}{
		{"OK", true},
		{"WRONG_ANSWER", true},
		{"COMPILATION_ERROR", true},
		{"TESTING", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := (Submission{Verdict: tc.verdict}).Terminal(); got != tc.want {
			t.Errorf("Terminal(%q) = %v, want %v", tc.verdict, got, tc.want)
		}
	}
}
