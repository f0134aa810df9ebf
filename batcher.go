package ferresdb

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// MaxBatchSize is the largest number of points sent in one write request.
const MaxBatchSize = 1000

// planBatches partitions points into contiguous chunks of at most size elements,
// preserving order. The chunks share the backing array of points.
func planBatches(points []Point, size int) [][]Point {
	if len(points) == 0 {
		return nil
	}
	batches := make([][]Point, 0, (len(points)+size-1)/size)
	for start := 0; start < len(points); start += size {
		end := min(start+size, len(points))
		batches = append(batches, points[start:end:end])
	}
	return batches
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

// Upsert inserts or updates points in a collection.
//
// An empty slice returns an empty result without contacting the server. Inputs
// larger than MaxBatchSize are split into chunks that are written one after
// another in order; Upserted is summed and Failed is concatenated across chunks.
// The first chunk error aborts the remaining chunks and is returned as is. Chunks
// written before the failure are not rolled back.
//
// Example:
//
//	res, err := client.Upsert(ctx, "docs", points)
//	if err != nil {
//	    return err
//	}
//	for _, f := range res.Failed {
//	    log.Printf("point %s rejected: %s", f.ID, f.Error)
//	}
func (c *Client) Upsert(ctx context.Context, collection string, points []Point, opts ...CallOption) (*UpsertResult, error) {
	if len(points) == 0 {
		return &UpsertResult{Upserted: 0, Failed: []FailedPoint{}}, nil
	}
	if len(points) <= MaxBatchSize {
		return c.upsertChunk(ctx, collection, points, opts)
	}

	batches := planBatches(points, MaxBatchSize)
	c.logger.Debug("splitting upsert",
		zap.String("collection", collection),
		zap.Int("points", len(points)),
		zap.Int("batches", len(batches)),
	)

	total := &UpsertResult{Failed: []FailedPoint{}}
	for i, batch := range batches {
		res, err := c.upsertChunk(ctx, collection, batch, opts)
		if err != nil {
			c.logger.Warn("upsert batch failed",
				zap.String("collection", collection),
				zap.Int("batch", i),
				zap.Error(err),
			)
			return nil, err
		}
		total.Upserted += res.Upserted
		total.Failed = append(total.Failed, res.Failed...)
	}
	return total, nil
}

// upsertChunk sends one write request.
func (c *Client) upsertChunk(ctx context.Context, collection string, points []Point, opts []CallOption) (*UpsertResult, error) {
	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "points"), upsertRequest{Points: points}, opts...)
	if err != nil {
		return nil, err
	}
	res, err := decodeResponse[UpsertResult]("upsert", body)
	if err != nil {
		return nil, err
	}
	if res.Failed == nil {
		res.Failed = []FailedPoint{}
	}
	return res, nil
}
