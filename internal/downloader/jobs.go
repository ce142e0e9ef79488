package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"tubegrab/internal/store"
	"tubegrab/pkg/models"
)

// pollInterval is how long an idle worker sleeps before checking the queue again
var pollInterval = 500 * time.Millisecond

// DownloadStatus represents the status of a queued download
type DownloadStatus int

const (
	StatusQueued DownloadStatus = iota
	StatusDownloading
	StatusCompleted
	StatusFailed
)

func (s DownloadStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusDownloading:
		return "downloading"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s DownloadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finished reports whether the job will not change anymore
func (s DownloadStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is an asynchronous download whose file is kept in the store
type Job struct {
	ID         string              `json:"id"`
	Request    models.MediaRequest `json:"request"`
	Status     DownloadStatus      `json:"status"`
	Progress   models.Progress     `json:"progress"`
	FileName   string              `json:"filename,omitempty"`
	Error      string              `json:"error,omitempty"`
	QueuedAt   time.Time           `json:"queued_at"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Start starts the downloader workers
func (d *Downloader) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true

	for i := 0; i < d.maxWorkers; i++ {
		d.workerWg.Add(1)
		go d.worker()
	}

	log.WithField("workers", d.maxWorkers).Debug("Downloader started")

	return nil
}

// Stop stops the workers and cancels downloads in progress
func (d *Downloader) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	d.running = false
	d.mu.Unlock()

	d.workerWg.Wait()

	return nil
}

// Queue adds a download to the queue and returns its job
func (d *Downloader) Queue(req models.MediaRequest) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil, ErrDownloaderStopped
	}

	job := &Job{
		ID:       uuid.New().String(),
		Request:  req,
		Status:   StatusQueued,
		QueuedAt: d.now(),
	}

	d.queue = append(d.queue, job)
	d.jobs[job.ID] = job

	log.WithFields(log.Fields{"job": job.ID, "url": req.URL}).Info("Download queued")

	jobCopy := *job
	return &jobCopy, nil
}

// GetStatus returns a snapshot of a job
func (d *Downloader) GetStatus(id string) (*Job, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, ok := d.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs returns snapshots of all known jobs, newest first
func (d *Downloader) ListJobs() []*Job {
	d.mu.RLock()
	defer d.mu.RUnlock()

	jobs := make([]*Job, 0, len(d.jobs))
	for _, job := range d.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].QueuedAt.After(jobs[j].QueuedAt)
	})

	return jobs
}

// FilePath returns the stored file of a completed job
func (d *Downloader) FilePath(id string) (string, error) {
	job, err := d.GetStatus(id)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", fmt.Errorf("%w: %s", ErrJobNotReady, job.Status)
	}

	path, err := d.store.GetFilePath(id)
	if err != nil {
		return "", err
	}

	d.store.UpdateLastAccess(id)
	return path, nil
}

// RemoveJob cancels a job if needed and deletes its stored file
func (d *Downloader) RemoveJob(id string) error {
	d.mu.Lock()
	if _, ok := d.jobs[id]; !ok {
		d.mu.Unlock()
		return ErrJobNotFound
	}

	for i, job := range d.queue {
		if job.ID == id {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}

	if cancel, ok := d.active[id]; ok {
		cancel()
	}

	delete(d.jobs, id)
	d.mu.Unlock()

	d.hub.Forget(id)

	if err := d.store.DeleteEntry(id); err != nil && !errors.Is(err, store.ErrEntryNotFound) {
		return err
	}

	return nil
}

// Sweep drops finished jobs, stored files and progress topics older than maxAge
func (d *Downloader) Sweep(maxAge time.Duration) int {
	cutoff := d.now().Add(-maxAge)

	var expired []string
	d.mu.Lock()
	for id, job := range d.jobs {
		if job.Status.Finished() && job.FinishedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(d.jobs, id)
		}
	}
	d.mu.Unlock()

	for _, id := range expired {
		d.store.DeleteEntry(id)
	}

	d.store.Expire(maxAge)
	d.hub.Prune(maxAge)

	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("Expired finished jobs")
	}

	return len(expired)
}

// worker processes jobs from the queue
func (d *Downloader) worker() {
	defer d.workerWg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		job, ctx := d.dequeue()
		if job == nil {
			time.Sleep(pollInterval)
			continue
		}

		d.processJob(ctx, job)
	}
}

// dequeue removes the next job from the queue and marks it active
func (d *Downloader) dequeue() (*Job, context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil, nil
	}

	job := d.queue[0]
	d.queue = d.queue[1:]

	ctx, cancel := context.WithCancel(d.ctx)
	d.active[job.ID] = cancel
	job.Status = StatusDownloading
	job.StartedAt = d.now()

	return job, ctx
}

// processJob downloads a job into the store and publishes its progress
func (d *Downloader) processJob(ctx context.Context, job *Job) {
	defer func() {
		d.mu.Lock()
		if cancel, ok := d.active[job.ID]; ok {
			cancel()
			delete(d.active, job.ID)
		}
		d.mu.Unlock()
	}()

	// holding mu orders every publish before or after RemoveJob's Forget
	publish := func(p models.Progress) {
		d.mu.Lock()
		defer d.mu.Unlock()

		job.Progress = p
		if _, ok := d.jobs[job.ID]; ok {
			d.hub.Publish(job.ID, p)
		}
	}

	fileName, err := d.downloadToStore(ctx, job.ID, job.Request, publish)

	d.mu.Lock()
	_, kept := d.jobs[job.ID]
	job.FinishedAt = d.now()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
		job.FileName = fileName
	}
	d.mu.Unlock()

	if !kept {
		// removed while downloading
		d.store.DeleteEntry(job.ID)
		return
	}

	if err != nil {
		log.WithField("job", job.ID).WithError(err).Warn("Job failed")
		publish(models.Progress{Status: models.ProgressError, Error: err.Error()})
		return
	}

	log.WithFields(log.Fields{"job": job.ID, "file": fileName}).Info("Job completed")
	publish(models.Progress{Status: models.ProgressFinished, Progress: 100})
}

func (d *Downloader) downloadToStore(ctx context.Context, id string, req models.MediaRequest, onProgress ProgressFunc) (string, error) {
	res, err := d.download(ctx, req, onProgress)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(res.Dir)

	entry, err := d.store.AddEntry(id, res.Path)
	if err != nil {
		return "", fmt.Errorf("failed to store download: %w", err)
	}

	return entry.FileName, nil
}

// GetQueueLength returns the number of queued downloads
func (d *Downloader) GetQueueLength() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.queue)
}

// GetActiveDownloads returns the number of active downloads
func (d *Downloader) GetActiveDownloads() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.active)
}
