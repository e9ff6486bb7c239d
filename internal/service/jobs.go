package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"
)

// EventLevel is the severity of a job event.
type EventLevel int

// Event levels as the backend numbers them.
const (
	EventInfo EventLevel = iota
	EventWarning
	EventError
	EventFatal
)

func (l EventLevel) String() string {
	switch l {
	case EventInfo:
		return "info"
	case EventWarning:
		return "warning"
	case EventError:
		return "error"
	case EventFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type jobRecord struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Status         string        `json:"status"`
	OriginatorType string        `json:"originatorType"`
	OriginatorID   string        `json:"originatorID"`
	Failures       int64         `json:"failures"`
	Error          string        `json:"error"`
	Events         []eventRecord `json:"events"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     *time.Time    `json:"finishedAt"`
}

type eventRecord struct {
	ID        int64      `json:"id"`
	JobID     int64      `json:"jobID"`
	Level     EventLevel `json:"level"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
}

// JobSummary is a row of the job status list.
type JobSummary struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	AssociatedObject string     `json:"associatedObject"`
	Status           string     `json:"status"`
	Warnings         int64      `json:"warnings"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
}

// JobEvent is one logged event of a job.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     int64     `json:"jobID"`
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timeStamp"`
}

// JobDetails is a job with its events.
type JobDetails struct {
	ID               int64      `json:"id"`
	Status           string     `json:"status"`
	Error            string     `json:"error,omitempty"`
	AssociatedObject string     `json:"associatedObject"`
	Events           []JobEvent `json:"events"`
}

// JobSearch is the job list query.
type JobSearch struct {
	Start int
	Limit int
	Query string
}

// JobPage is one page of jobs.
type JobPage struct {
	Jobs  []JobSummary `json:"jobs"`
	Total int64        `json:"total"`
}

func associatedObject(r jobRecord) string {
	if r.OriginatorType == "" {
		return "None"
	}
	return fmt.Sprintf("%s %s", r.OriginatorType, r.OriginatorID)
}

// JobsStoreOptions groups dependencies for JobsStore.
type JobsStoreOptions struct {
	Deps StoreDeps
}

// JobsStore lists, shows and deletes job status records.
type JobsStore struct {
	deps   StoreDeps
	logger *slog.Logger

	mu    sync.Mutex
	jobs  []JobSummary
	total int64
}

// NewJobsStore constructs a JobsStore.
func NewJobsStore(opts JobsStoreOptions) *JobsStore {
	opts.Deps.validate("JobsStore")
	return &JobsStore{
		deps:   opts.Deps,
		logger: resolveLogger(opts.Deps.Logger).With("store", "jobs"),
	}
}

// List fetches a page of job statuses, newest first.
func (s *JobsStore) List(ctx context.Context, q JobSearch) (JobPage, error) {
	if q.Limit <= 0 {
		q.Limit = 30
	}
	v := url.Values{}
	v.Set("start", strconv.Itoa(max(q.Start, 0)))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Query != "" {
		v.Set("q", q.Query)
	}

	s.deps.System.SetWorking(true)
	var resp struct {
		Jobs  []jobRecord `json:"jobs"`
		Total int64       `json:"total"`
	}
	if err := s.deps.Backend.GetJSON(ctx, "/api/jobs?"+v.Encode(), &resp); err != nil {
		s.deps.System.SetError(err)
		return JobPage{}, err
	}
	s.deps.System.SetWorking(false)

	page := JobPage{Jobs: make([]JobSummary, 0, len(resp.Jobs)), Total: resp.Total}
	for _, r := range resp.Jobs {
		page.Jobs = append(page.Jobs, JobSummary{
			ID:               r.ID,
			Name:             r.Name,
			AssociatedObject: associatedObject(r),
			Status:           r.Status,
			Warnings:         r.Failures,
			Error:            r.Error,
			StartedAt:        r.StartedAt,
			FinishedAt:       r.FinishedAt,
		})
	}

	s.mu.Lock()
	s.jobs = page.Jobs
	s.total = page.Total
	s.mu.Unlock()
	return page, nil
}

// GetDetails loads one job with its events.
func (s *JobsStore) GetDetails(ctx context.Context, id int64) (JobDetails, error) {
	s.deps.System.SetWorking(true)
	var r jobRecord
	if err := s.deps.Backend.GetJSON(ctx, fmt.Sprintf("/api/jobs/%d", id), &r); err != nil {
		return JobDetails{}, detailFailed(s.deps, err)
	}
	s.deps.System.SetWorking(false)

	d := JobDetails{
		ID:               id,
		Status:           r.Status,
		Error:            r.Error,
		AssociatedObject: associatedObject(r),
		Events:           make([]JobEvent, 0, len(r.Events)),
	}
	for _, e := range r.Events {
		d.Events = append(d.Events, JobEvent{
			ID:        e.ID,
			JobID:     e.JobID,
			Level:     e.Level.String(),
			Text:      e.Text,
			Timestamp: e.CreatedAt,
		})
	}

	s.mu.Lock()
	for _, j := range s.jobs {
		if j.ID == id {
			d.AssociatedObject = j.AssociatedObject
			break
		}
	}
	s.mu.Unlock()
	return d, nil
}

// Delete removes job statuses and drops them from the cached list.
func (s *JobsStore) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.deps.System.SetWorking(true)
	var resp struct {
		Jobs []int64 `json:"jobs"`
	}
	if err := s.deps.Backend.Delete(ctx, "/api/jobs", map[string][]int64{"jobs": ids}, &resp); err != nil {
		s.deps.System.SetError(err)
		return err
	}
	s.deps.System.SetWorking(false)

	s.mu.Lock()
	before := len(s.jobs)
	s.jobs = slices.DeleteFunc(s.jobs, func(j JobSummary) bool {
		return slices.Contains(resp.Jobs, j.ID)
	})
	s.total -= int64(before - len(s.jobs))
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "job statuses deleted", slog.Int("count", len(resp.Jobs)))
	return nil
}

// Cached returns the last fetched page.
func (s *JobsStore) Cached() JobPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return JobPage{Jobs: slices.Clone(s.jobs), Total: s.total}
}
