package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/internal/logging"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Done reports whether the status is final.
func (s JobStatus) Done() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is an asynchronous document conversion.
type Job struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Progress    int              `json:"progress"` // 0-100
	Filename    string           `json:"filename"`
	Config      string           `json:"config"`
	Report      *document.Report `json:"report,omitempty"`
	ResultURL   string           `json:"result_url,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
	CompletedAt string           `json:"completed_at,omitempty"`

	created time.Time
	request convert.StreamRequest
	input   []byte
	ctx     context.Context
	cancel  context.CancelFunc
}

// JobStore manages conversion jobs in memory. Readers get copies, so a
// job can be encoded while a worker updates it.
type JobStore struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewJobStore creates a new job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
	}
}

// Create registers a pending job for input. The job's context is derived
// from parent.
func (s *JobStore) Create(parent context.Context, filename string, req convert.StreamRequest, input []byte) *Job {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339)

	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Filename:  filename,
		Config:    req.Config,
		CreatedAt: stamp,
		UpdatedAt: stamp,
		created:   now,
		request:   req,
		input:     input,
		ctx:       ctx,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

func (j *Job) snapshot() Job {
	c := *j
	c.input = nil
	return c
}

// Get returns a copy of the job.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, false
	}
	return job.snapshot(), true
}

// Update applies fn to the job under the store lock. Final states are
// sticky: updates to a finished job are ignored and Update returns false.
func (s *JobStore) Update(id string, fn func(*Job)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return false, errors.NewNotFound("job", id)
	}
	if job.Status.Done() {
		return false, nil
	}

	fn(job)
	now := time.Now().UTC().Format(time.RFC3339)
	job.UpdatedAt = now
	if job.Status.Done() {
		job.CompletedAt = now
		job.input = nil
		job.cancel()
	}
	return true, nil
}

// Delete cancels the job if it is still active and removes it.
func (s *JobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return errors.NewNotFound("job", id)
	}
	job.cancel()
	delete(s.jobs, id)
	return nil
}

// List returns copies of all jobs, oldest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}
	s.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b Job) int {
		if c := a.created.Compare(b.created); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return jobs
}

// Cancel stops a pending or running job.
func (s *JobStore) Cancel(id string) error {
	updated, err := s.Update(id, func(j *Job) {
		j.Status = JobStatusCancelled
		j.Error = "job cancelled by user"
	})
	if err != nil {
		return err
	}
	if !updated {
		job, _ := s.Get(id)
		return errors.NewValidation("status", fmt.Sprintf("job cannot be cancelled (status: %s)", job.Status))
	}
	return nil
}

// CancelAll cancels every active job.
func (s *JobStore) CancelAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if !job.Status.Done() {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Update(id, func(j *Job) {
			j.Status = JobStatusCancelled
			j.Error = "server shutting down"
		})
	}
}

// jobOutcome is what a worker hands back to the result collector.
type jobOutcome struct {
	id       string
	report   *document.Report
	err      error
	duration time.Duration
}

// claim marks a pending job running and hands its payload to the worker.
// It reports false when the job is gone or already finished.
func (s *JobStore) claim(id string) (convert.StreamRequest, []byte, context.Context, bool) {
	var (
		req   convert.StreamRequest
		input []byte
		ctx   context.Context
	)
	ok, _ := s.Update(id, func(j *Job) {
		j.Status = JobStatusRunning
		j.Progress = 10
		req, input, ctx = j.request, j.input, j.ctx
	})
	return req, input, ctx, ok
}

// runJob converts one queued document. It runs on a pool worker.
func (s *Server) runJob(job *Job) jobOutcome {
	s.queued.Add(-1)

	req, input, ctx, ok := s.jobs.claim(job.ID)
	if !ok {
		return jobOutcome{id: job.ID, err: context.Canceled}
	}
	s.hub.Progress("job", job.ID, "converting", "Converting "+job.Filename, 10)

	if s.cfg.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DocumentTimeout)
		defer cancel()
	}

	start := time.Now()
	var out bytes.Buffer
	report, err := s.conv.ConvertStream(ctx, bytes.NewReader(input), int64(len(input)), &out, req)
	if err == nil {
		s.results.Put(job.ID, out.Bytes())
	}
	return jobOutcome{id: job.ID, report: report, err: err, duration: time.Since(start)}
}

// collectResults records finished jobs until the pool is closed.
func (s *Server) collectResults() {
	for outcome := range s.pool.Results() {
		s.finishJob(outcome)
	}
}

func (s *Server) finishJob(o jobOutcome) {
	if o.err != nil {
		status := JobStatusFailed
		if errors.Is(o.err, context.Canceled) {
			status = JobStatusCancelled
		}
		updated, _ := s.jobs.Update(o.id, func(j *Job) {
			j.Status = status
			j.Error = o.err.Error()
		})
		if updated {
			logging.ConversionError(context.Background(), "document job", o.err, "job_id", o.id)
			s.hub.Fail("job", o.id, o.err.Error())
		}
		return
	}

	updated, _ := s.jobs.Update(o.id, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.Report = o.report
		j.ResultURL = "/jobs/" + o.id + "/result"
	})
	if !updated {
		// Cancelled while converting.
		s.results.Remove(o.id)
		return
	}
	job, _ := s.jobs.Get(o.id)
	logging.DocumentConverted(context.Background(), job.Filename, string(o.report.Format),
		o.report.Entries, o.report.ChangedEntries, o.duration, "job_id", o.id)
	s.hub.Complete("job", o.id, "Conversion completed", map[string]any{
		"result_url":       job.ResultURL,
		"format":           o.report.Format,
		"changed_segments": o.report.ChangedSegments,
	})
}

// enqueue admits job to the worker pool unless the queue is full.
func (s *Server) enqueue(job *Job) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	if s.closed || s.queued.Load() >= int64(s.cfg.JobQueueSize) {
		return false
	}
	s.queued.Add(1)
	s.pool.Submit(job)
	return true
}

// handleJobs handles POST /jobs (create) and GET /jobs (list).
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs := s.jobs.List()
		respondList(w, http.StatusOK, jobs, len(jobs))
	case http.MethodPost:
		s.createJob(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and POST are allowed")
	}
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	job := s.jobs.Create(s.ctx, up.filename, up.request, up.data)
	if !s.enqueue(job) {
		s.jobs.Delete(job.ID)
		respondError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "Too many pending jobs, try again later")
		return
	}
	s.hub.Progress("job", job.ID, "queued", "Queued "+up.filename, 0)

	snapshot, _ := s.jobs.Get(job.ID)
	w.Header().Set("Location", "/jobs/"+job.ID)
	respond(w, http.StatusAccepted, snapshot)
}

// handleJobByID handles GET /jobs/{id}, GET /jobs/{id}/result and
// DELETE /jobs/{id}.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	id, sub, _ := strings.Cut(rest, "/")
	if err := ValidateID(id); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", err.Error())
		return
	}

	switch {
	case sub == "result" && r.Method == http.MethodGet:
		s.downloadResult(w, id)
	case sub != "":
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
	case r.Method == http.MethodGet:
		job, exists := s.jobs.Get(id)
		if !exists {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
			return
		}
		respond(w, http.StatusOK, job)
	case r.Method == http.MethodDelete:
		s.deleteJob(w, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET and DELETE are allowed")
	}
}

// deleteJob cancels an active job, or forgets a finished one and its
// result.
func (s *Server) deleteJob(w http.ResponseWriter, id string) {
	job, exists := s.jobs.Get(id)
	if !exists {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}

	if !job.Status.Done() {
		if err := s.jobs.Cancel(id); err == nil {
			s.hub.Fail("job", id, "job cancelled by user")
			respond(w, http.StatusOK, map[string]string{"message": "Job cancelled"})
			return
		}
	}

	s.jobs.Delete(id)
	s.results.Remove(id)
	respond(w, http.StatusOK, map[string]string{"message": "Job deleted"})
}

func (s *Server) downloadResult(w http.ResponseWriter, id string) {
	job, exists := s.jobs.Get(id)
	if !exists {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Job not found")
		return
	}
	if job.Status != JobStatusCompleted {
		respondError(w, http.StatusConflict, "JOB_NOT_COMPLETE", fmt.Sprintf("Job is %s", job.Status))
		return
	}
	data, ok := s.results.Get(id)
	if !ok {
		respondError(w, http.StatusGone, "RESULT_EXPIRED", "Converted document is no longer available")
		return
	}

	writeDocument(w, convertedName(job.Filename, job.Report.Format), job.Report, data)
}

// writeDocument sends a converted document as an attachment.
func writeDocument(w http.ResponseWriter, name string, report *document.Report, data []byte) {
	w.Header().Set("Content-Type", report.Format.MediaType())
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Zhconv-Format", string(report.Format))
	w.Header().Set("X-Zhconv-Changed-Segments", strconv.Itoa(report.ChangedSegments))
	w.Header().Set("X-Zhconv-Output-Digest", report.OutputDigest)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
