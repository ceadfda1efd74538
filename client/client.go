// Package client reads a running validator through its HTTP API.
package client

import (
	"fmt"
	"net/http"
	"time"
)

// Client connects to a validator's status API.
type Client struct {
	base string       // base is the URL prefix, e.g. "http://127.0.0.1:8080"
	http *http.Client // http performs the requests
}

// Status mirrors GET /status.
type Status struct {
	State        string `json:"state"`        // State is the run state name
	Step         uint64 `json:"step"`         // Step is the completed step counter
	Block        uint64 `json:"block"`        // Block is the last applied topology block
	Size         int    `json:"size"`         // Size is the number of scored uids
	LastDispatch uint64 `json:"lastDispatch"` // LastDispatch is the block of the last weight dispatch
	Submitting   bool   `json:"submitting"`   // Submitting is set while a submission is in flight
	LastError    string `json:"lastError"`    // LastError is the most recent step failure
}

// ScoreInfo mirrors GET /scores/{uid}.
type ScoreInfo struct {
	UID    int       `json:"uid"`    // UID is the queried uid
	Score  float64   `json:"score"`  // Score is the current smoothed score
	Recent []float64 `json:"recent"` // Recent are the latest raw rewards, oldest first
}

// NewClient creates a client for the API at addr ("host:port").
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Healthy reports whether the validator's run loop is alive.
func (c *Client) Healthy() (bool, error) {
	var body struct {
		Status string `json:"status"`
	}

	code, err := c.httpGet("/health", &body, http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		return false, err
	}

	return code == http.StatusOK, nil
}

// Status fetches the validator status.
func (c *Client) Status() (Status, error) {
	var st Status

	if _, err := c.httpGet("/status", &st); err != nil {
		return Status{}, err
	}

	return st, nil
}

// Scores fetches the full score vector.
func (c *Client) Scores() ([]float64, error) {
	var body struct {
		Scores []float64 `json:"scores"`
	}

	if _, err := c.httpGet("/scores", &body); err != nil {
		return nil, err
	}

	return body.Scores, nil
}

// Score fetches one uid's score and recent rewards.
func (c *Client) Score(uid int) (ScoreInfo, error) {
	var info ScoreInfo

	if _, err := c.httpGet(fmt.Sprintf("/scores/%d", uid), &info); err != nil {
		return ScoreInfo{}, err
	}

	return info, nil
}

// WaitForStep polls until the validator has completed step or timeout elapses.
func (c *Client) WaitForStep(step uint64, timeout time.Duration) (Status, error) {
	deadline := time.Now().Add(timeout)

	for {
		st, err := c.Status()
		if err == nil && st.Step >= step {
			return st, nil
		}

		if time.Now().After(deadline) {
			if err != nil {
				return st, fmt.Errorf("wait for step %d:\n%w", step, err)
			}
			return st, fmt.Errorf("wait for step %d: reached %d", step, st.Step)
		}

		time.Sleep(20 * time.Millisecond)
	}
}
