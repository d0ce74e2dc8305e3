// Package verify wraps the Codeforces API: handle existence, accepted
// submissions, and contest problem lists. Calls are slow and fallible, so
// results are cached and callers never invoke this with the registry lock
// held.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnavailable wraps any transport or upstream failure; callers fail
// closed on it.
var ErrUnavailable = fmt.Errorf("verification service unavailable")

const (
	handleCacheTTL  = 600 * time.Second
	problemCacheTTL = 300 * time.Second

	// How many recent submissions to scan for an accepted verdict.
	recentSubmissions = 10
)

var now = time.Now

type Problem struct {
	ContestID *int     `json:"contestId,omitempty"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Rating    *int     `json:"rating,omitempty"`
	Tags      []string `json:"tags"`
}

type cachedHandle struct {
	at     time.Time
	exists bool
}

type cachedProblems struct {
	at       time.Time
	problems []Problem
}

type Client struct {
	http *http.Client
	base string
	log  *zap.Logger

	// Collapses concurrent fills for the same cache key.
	group singleflight.Group

	mu       sync.Mutex
	handles  map[string]cachedHandle
	problems map[int]cachedProblems
}

func New(base string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		base:     base,
		log:      log,
		handles:  make(map[string]cachedHandle),
		problems: make(map[int]cachedProblems),
	}
}

// VerifyHandleExists reports whether the handle is a real Codeforces user.
// Results, positive and negative, are cached for 10 minutes.
func (c *Client) VerifyHandleExists(ctx context.Context, handle string) (bool, error) {
	c.mu.Lock()
	if entry, ok := c.handles[handle]; ok && now().Sub(entry.at) < handleCacheTTL {
		c.mu.Unlock()
		return entry.exists, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("handle:"+handle, func() (any, error) {
		u := fmt.Sprintf("%s/user.info?handles=%s", c.base, url.QueryEscape(handle))
		var body struct {
			Status string `json:"status"`
		}
		exists := false
		status, err := c.getJSON(ctx, u, &body)
		if err != nil {
			return false, err
		}
		if status == http.StatusOK && body.Status == "OK" {
			exists = true
		}
		c.mu.Lock()
		c.handles[handle] = cachedHandle{at: now(), exists: exists}
		c.mu.Unlock()
		return exists, nil
	})
	if err != nil {
		c.log.Warn("handle verification failed", zap.String("handle", handle), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v.(bool), nil
}

// VerifySolved scans the handle's most recent submissions for an accepted
// verdict on the given problem.
func (c *Client) VerifySolved(ctx context.Context, handle string, contestID int, index string) (bool, error) {
	u := fmt.Sprintf("%s/user.status?handle=%s&from=1&count=%d",
		c.base, url.QueryEscape(handle), recentSubmissions)

	var body struct {
		Status string `json:"status"`
		Result []struct {
			Verdict string  `json:"verdict"`
			Problem Problem `json:"problem"`
		} `json:"result"`
	}
	status, err := c.getJSON(ctx, u, &body)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status != http.StatusOK || body.Status != "OK" {
		return false, fmt.Errorf("%w: user.status returned %q", ErrUnavailable, body.Status)
	}

	for _, sub := range body.Result {
		if sub.Verdict != "OK" {
			continue
		}
		if sub.Problem.ContestID != nil && *sub.Problem.ContestID == contestID && sub.Problem.Index == index {
			return true, nil
		}
	}
	return false, nil
}

// FetchContestProblems returns the contest's problem list, cached for 5
// minutes. The standings endpoint with count=1 is the cheapest way to get
// the list.
func (c *Client) FetchContestProblems(ctx context.Context, contestID int) ([]Problem, error) {
	c.mu.Lock()
	if entry, ok := c.problems[contestID]; ok && now().Sub(entry.at) < problemCacheTTL {
		c.mu.Unlock()
		return entry.problems, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("contest:"+strconv.Itoa(contestID), func() (any, error) {
		u := fmt.Sprintf("%s/contest.standings?contestId=%d&from=1&count=1", c.base, contestID)
		var body struct {
			Status string `json:"status"`
			Result struct {
				Problems []Problem `json:"problems"`
			} `json:"result"`
		}
		status, err := c.getJSON(ctx, u, &body)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK || body.Status != "OK" {
			return nil, fmt.Errorf("contest.standings returned %q", body.Status)
		}
		c.mu.Lock()
		c.problems[contestID] = cachedProblems{at: now(), problems: body.Result.Problems}
		c.mu.Unlock()
		return body.Result.Problems, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v.([]Problem), nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
