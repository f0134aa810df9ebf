package ferresdb

import (
	"context"
	"iter"
)

// DefaultPageSize is the page size used by PointPages and AllPoints.
const DefaultPageSize = 100

// PointPages returns an iterator over the pages of a collection.
// Use with Go 1.23+ for range syntax:
//
//	for page, err := range client.PointPages(ctx, "docs") {
//	    if err != nil {
//	        return err
//	    }
//	    process(page.Points)
//	}
//
// Iteration ends after a short page, once Total points have been seen, or after
// the first error.
func (c *Client) PointPages(ctx context.Context, collection string, opts ...CallOption) iter.Seq2[*PointPage, error] {
	return func(yield func(*PointPage, error) bool) {
		offset := 0
		for {
			page, err := c.ListPoints(ctx, collection, DefaultPageSize, offset, opts...)
			if !yield(page, err) {
				return
			}
			if err != nil {
				return
			}
			offset += len(page.Points)
			if len(page.Points) < DefaultPageSize || int64(offset) >= page.Total {
				return
			}
		}
	}
}

// AllPoints returns an iterator over every point of a collection.
// Pages are flattened:
//
//	for p, err := range client.AllPoints(ctx, "docs") {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(p.ID)
//	}
func (c *Client) AllPoints(ctx context.Context, collection string, opts ...CallOption) iter.Seq2[Point, error] {
	return func(yield func(Point, error) bool) {
		for page, err := range c.PointPages(ctx, collection, opts...) {
			if err != nil {
				yield(Point{}, err)
				return
			}
			for _, p := range page.Points {
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}
