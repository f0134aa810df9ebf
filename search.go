package ferresdb

import (
	"context"
	"net/http"
)

// Search runs a similarity query.
//
// When req.BudgetMs is set and the server estimates the query will take longer,
// the call fails with a KindBudgetExceeded error carrying the estimate:
//
//	res, err := client.Search(ctx, "docs", ferresdb.SearchRequest{
//	    Vector:   vec,
//	    Limit:    10,
//	    BudgetMs: 5,
//	})
//	var ferr *ferresdb.Error
//	if errors.As(err, &ferr) && ferr.Kind == ferresdb.KindBudgetExceeded {
//	    log.Printf("too slow: %.1fms", ferr.Estimate.EstimatedMs)
//	}
func (c *Client) Search(ctx context.Context, collection string, req SearchRequest, opts ...CallOption) (*SearchResponse, error) {
	if err := checkQuery(req); err != nil {
		return nil, err
	}
	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "search"), req, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[SearchResponse]("search", body)
}

// EstimateCost predicts the cost of a search without running it.
func (c *Client) EstimateCost(ctx context.Context, collection string, req SearchRequest, opts ...CallOption) (*CostEstimate, error) {
	if err := checkQuery(req); err != nil {
		return nil, err
	}
	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "search", "estimate"), req, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[CostEstimate]("estimate cost", body)
}

// Explain returns the query plan the server would use for a search.
func (c *Client) Explain(ctx context.Context, collection string, req SearchRequest, opts ...CallOption) (*Explanation, error) {
	if err := checkQuery(req); err != nil {
		return nil, err
	}
	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "search", "explain"), req, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[Explanation]("explain", body)
}

// HybridSearch ranks points by a combination of keyword relevance and vector
// similarity. A nil Fusion leaves the choice to the server; a Fusion with a
// missing parameter is sent with DefaultFusionAlpha or DefaultFusionRRFK.
// The collection must have been created with EnableBM25; this is not checked locally.
func (c *Client) HybridSearch(ctx context.Context, collection string, req HybridSearchRequest, opts ...CallOption) (*HybridSearchResponse, error) {
	if req.Text == "" {
		return nil, invalidPayload("hybrid search text is required")
	}
	if len(req.Vector) == 0 {
		return nil, invalidPayload("query vector is required")
	}
	if req.Limit <= 0 {
		return nil, invalidPayload("limit must be positive")
	}
	if err := checkFilter(req.Filter); err != nil {
		return nil, err
	}
	if req.Fusion != nil {
		f, err := withFusionDefaults(*req.Fusion)
		if err != nil {
			return nil, err
		}
		req.Fusion = &f
	}

	body, err := c.execute(ctx, http.MethodPost, collectionPath(collection, "search", "hybrid"), req, opts...)
	if err != nil {
		return nil, err
	}
	return decodeResponse[HybridSearchResponse]("hybrid search", body)
}

// withFusionDefaults fills the parameter of the selected strategy and drops the other.
func withFusionDefaults(f Fusion) (Fusion, error) {
	switch f.Strategy {
	case FusionLinear:
		alpha := DefaultFusionAlpha
		if f.Alpha != nil {
			alpha = *f.Alpha
		}
		if alpha < 0 || alpha > 1 {
			return Fusion{}, invalidPayload("fusion alpha %v outside [0,1]", alpha)
		}
		return Fusion{Strategy: FusionLinear, Alpha: &alpha}, nil
	case FusionRRF:
		k := DefaultFusionRRFK
		if f.K != nil {
			k = *f.K
		}
		if k <= 0 {
			return Fusion{}, invalidPayload("fusion k must be positive")
		}
		return Fusion{Strategy: FusionRRF, K: &k}, nil
	default:
		return Fusion{}, invalidPayload("unknown fusion strategy %q", f.Strategy)
	}
}

func checkQuery(req SearchRequest) error {
	if len(req.Vector) == 0 {
		return invalidPayload("query vector is required")
	}
	if req.Limit <= 0 {
		return invalidPayload("limit must be positive")
	}
	if req.BudgetMs < 0 {
		return invalidPayload("budget must not be negative")
	}
	return checkFilter(req.Filter)
}

// checkFilter rejects non-scalar filter values; only equality on strings,
// numbers and booleans is supported.
func checkFilter(f Filter) error {
	for k, v := range f {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return invalidPayload("filter value for %q must be a string, number or boolean, got %T", k, v)
		}
	}
	return nil
}
