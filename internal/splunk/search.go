package splunk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mazrean/splunkmcp/internal/pkg/json"
)

// JobRequest describes a search job to create
type JobRequest struct {
	// ID is the search id to assign. Splunk generates one when empty.
	ID       string
	Search   string
	Earliest string
	Latest   string
}

type createJobResponse struct {
	SID string `json:"sid"`
}

// CreateJob creates a search job and returns its search id
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (string, error) {
	form := url.Values{}
	form.Set("search", req.Search)
	if req.ID != "" {
		form.Set("id", req.ID)
	}
	if req.Earliest != "" {
		form.Set("earliest_time", req.Earliest)
	}
	if req.Latest != "" {
		form.Set("latest_time", req.Latest)
	}

	var res createJobResponse
	_, err := c.do(ctx, http.MethodPost, []string{"services", "search", "jobs"}, nil, form, &res)
	if err != nil {
		return "", fmt.Errorf("create search job: %w", err)
	}
	if res.SID == "" {
		return "", fmt.Errorf("create search job: response has no sid")
	}

	return res.SID, nil
}

// Dispatch states reported by Splunk
const (
	DispatchStateQueued     = "QUEUED"
	DispatchStateParsing    = "PARSING"
	DispatchStateRunning    = "RUNNING"
	DispatchStateFinalizing = "FINALIZING"
	DispatchStateDone       = "DONE"
	DispatchStateFailed     = "FAILED"
)

// JobStatus is the subset of the search job entity used to follow its progress
type JobStatus struct {
	DispatchState string          `json:"dispatchState"`
	IsDone        bool            `json:"isDone"`
	IsFailed      bool            `json:"isFailed"`
	RawMessages   json.RawMessage `json:"messages"`
}

// Failed reports whether the job ended in error
func (s *JobStatus) Failed() bool {
	return s.IsFailed || s.DispatchState == DispatchStateFailed
}

// Done reports whether the job finished successfully
func (s *JobStatus) Done() bool {
	return !s.Failed() && (s.IsDone || s.DispatchState == DispatchStateDone)
}

// Messages returns the job messages. Splunk serves them either as an array of
// {type, text} objects or as an object mapping the type to a list of texts.
func (s *JobStatus) Messages() []Message {
	if len(s.RawMessages) == 0 {
		return nil
	}

	var list []Message
	if err := json.Unmarshal(s.RawMessages, &list); err == nil {
		return list
	}

	var byType map[string][]string
	if err := json.Unmarshal(s.RawMessages, &byType); err != nil {
		return nil
	}

	// map order is random; emit known severities first
	var messages []Message
	for _, typ := range []string{"fatal", "error", "warn", "info", "debug"} {
		for _, text := range byType[typ] {
			messages = append(messages, Message{Type: typ, Text: text})
		}
	}

	return messages
}

// JobStatus fetches the status of the job sid
func (c *Client) JobStatus(ctx context.Context, sid string) (*JobStatus, error) {
	var list entryList[JobStatus]
	_, err := c.do(ctx, http.MethodGet, []string{"services", "search", "jobs", sid}, nil, nil, &list)
	if err != nil {
		return nil, fmt.Errorf("get search job %s: %w", sid, err)
	}
	if len(list.Entry) == 0 {
		return nil, fmt.Errorf("get search job %s: response has no entry", sid)
	}

	status := list.Entry[0].Content
	return &status, nil
}

type resultsResponse struct {
	Results *[]json.RawMessage `json:"results"`
}

// Results fetches up to count results of the job sid.
// ready is false while the results are not available yet.
func (c *Client) Results(ctx context.Context, sid string, count int) (results []json.RawMessage, ready bool, err error) {
	query := url.Values{}
	query.Set("count", strconv.Itoa(count))

	var res resultsResponse
	status, err := c.do(ctx, http.MethodGet, []string{"services", "search", "jobs", sid, "results"}, query, nil, &res)
	if err != nil {
		return nil, false, fmt.Errorf("get search results %s: %w", sid, err)
	}

	if status == http.StatusNoContent || res.Results == nil {
		return nil, false, nil
	}

	return *res.Results, true, nil
}

// CancelJob cancels the job sid
func (c *Client) CancelJob(ctx context.Context, sid string) error {
	form := url.Values{}
	form.Set("action", "cancel")

	_, err := c.do(ctx, http.MethodPost, []string{"services", "search", "jobs", sid, "control"}, nil, form, nil)
	if err != nil {
		return fmt.Errorf("cancel search job %s: %w", sid, err)
	}

	return nil
}
