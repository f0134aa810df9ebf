package ferresdb

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is used by WaitForReindex when interval is not positive.
const DefaultPollInterval = time.Second

// StartReindex starts rebuilding a collection's index in the background.
// The server allows one active job per collection; a second start fails with
// an ErrAlreadyExists-kind error.
func (c *Client) StartReindex(ctx context.Context, collection string, opts ...CallOption) (*ReindexJob, error) {
	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "reindex"), nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[ReindexJob]("start reindex", body)
}

// GetReindexJob returns a job by id.
func (c *Client) GetReindexJob(ctx context.Context, collection, jobID string, opts ...CallOption) (*ReindexJob, error) {
	if jobID == "" {
		return nil, invalidPayload("job id is required")
	}
	body, err := c.execute(ctx, http.MethodGet, collectionPath(collection, "reindex", url.PathEscape(jobID)), nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[ReindexJob]("get reindex job", body)
}

// ListReindexJobs returns all jobs of a collection.
func (c *Client) ListReindexJobs(ctx context.Context, collection string, opts ...CallOption) ([]ReindexJob, error) {
	body, err := c.execute(ctx, http.MethodGet, collectionPath(collection, "reindex"), nil, opts...)
	if err != nil {
		return nil, err
	}
	res, err := decodeResponse[listReindexJobsResponse]("list reindex jobs", body)
	if err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// WaitForReindex polls a job every interval until it reaches a terminal state
// and returns the final job. A failed job is returned without error; check State.
// Polling stops with the context's error when ctx is done.
func (c *Client) WaitForReindex(ctx context.Context, collection, jobID string, interval time.Duration, opts ...CallOption) (*ReindexJob, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		job, err := c.GetReindexJob(ctx, collection, jobID, opts...)
		if err != nil {
			return nil, err
		}
		if job.State.IsTerminal() {
			return job, nil
		}
		c.logger.Debug("reindex in progress",
			zap.String("collection", collection),
			zap.String("job_id", jobID),
			zap.String("state", string(job.State)),
			zap.Float64("progress", job.Progress),
		)
		if err := c.sleep(ctx, interval); err != nil {
			return nil, connectionError("waiting for reindex", err)
		}
	}
}
