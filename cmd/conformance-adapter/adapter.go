package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	ferresdb "github.com/ferres-db/ferresdb-go"
)

const clientVersion = "0.1.0"

const defaultCommandTimeout = 30 * time.Second

// Command types from the test runner
type Command struct {
	Type       string `json:"type"`
	ServerURL  string `json:"serverUrl,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
	MaxRetries *int   `json:"maxRetries,omitempty"`

	Collection string `json:"collection,omitempty"`
	// Create fields
	Dimension     int    `json:"dimension,omitempty"`
	Distance      string `json:"distance,omitempty"`
	EnableBM25    bool   `json:"enableBm25,omitempty"`
	BM25TextField string `json:"bm25TextField,omitempty"`
	// Point fields
	Points []ferresdb.Point `json:"points,omitempty"`
	ID     string           `json:"id,omitempty"`
	IDs    []string         `json:"ids,omitempty"`
	// Search fields
	Vector   []float32        `json:"vector,omitempty"`
	Text     string           `json:"text,omitempty"`
	Limit    int              `json:"limit,omitempty"`
	Filter   ferresdb.Filter  `json:"filter,omitempty"`
	BudgetMs int              `json:"budgetMs,omitempty"`
	Fusion   *ferresdb.Fusion `json:"fusion,omitempty"`
}

// Result types sent back to test runner
type Result struct {
	Type          string                 `json:"type"`
	Success       bool                   `json:"success"`
	ClientName    string                 `json:"clientName,omitempty"`
	ClientVersion string                 `json:"clientVersion,omitempty"`
	Features      *Features              `json:"features,omitempty"`
	Status        int                    `json:"status,omitempty"`
	Upserted      int                    `json:"upserted,omitempty"`
	Failed        int                    `json:"failed,omitempty"`
	Deleted       int                    `json:"deleted,omitempty"`
	Point         *ferresdb.Point        `json:"point,omitempty"`
	Results       []Hit                  `json:"results,omitempty"`
	Estimate      *ferresdb.CostEstimate `json:"estimate,omitempty"`
	Collection    *ferresdb.Collection   `json:"collection,omitempty"`
	RTTMs         float64                `json:"rttMs,omitempty"`
	CommandType   string                 `json:"commandType,omitempty"`
	ErrorCode     string                 `json:"errorCode,omitempty"`
	Message       string                 `json:"message,omitempty"`
}

type Features struct {
	Batching  bool `json:"batching"`
	Hybrid    bool `json:"hybrid"`
	Streaming bool `json:"streaming"`
}

// Hit is one ranked search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Custom JSON marshaling to ensure Results is [] not omitted for search results
func (r Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	alias := Alias(r)
	if alias.Type != "search" && alias.Type != "hybrid-search" {
		return json.Marshal(alias)
	}
	results := alias.Results
	if results == nil {
		results = []Hit{}
	}
	return json.Marshal(struct {
		Alias
		Results []Hit `json:"results"`
	}{alias, results})
}

// adapter holds the client and streaming session between commands.
type adapter struct {
	client  *ferresdb.Client
	session *ferresdb.Session
}

func newAdapter() *adapter {
	return &adapter{}
}

// run answers one result line per command line until shutdown or EOF.
func (a *adapter) run(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	// Increase buffer size for large messages
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd Command
		var result Result
		if err := json.Unmarshal(line, &cmd); err != nil {
			result = sendError("unknown", "PARSE_ERROR", fmt.Sprintf("failed to parse command: %v", err))
		} else {
			result = a.handleCommand(cmd)
		}

		output, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))

		if cmd.Type == "shutdown" {
			break
		}
	}
	return scanner.Err()
}

func (a *adapter) close() {
	if a.session != nil {
		a.session.Close()
	}
}

func (a *adapter) handleCommand(cmd Command) Result {
	if cmd.Type != "init" && cmd.Type != "shutdown" && a.client == nil {
		return sendError(cmd.Type, "NOT_INITIALIZED", "init must be sent first")
	}

	switch cmd.Type {
	case "init":
		return a.handleInit(cmd)
	case "health":
		return a.handleHealth()
	case "create-collection":
		return a.handleCreateCollection(cmd)
	case "delete-collection":
		return a.handleDeleteCollection(cmd)
	case "upsert":
		return a.handleUpsert(cmd)
	case "get-point":
		return a.handleGetPoint(cmd)
	case "delete-points":
		return a.handleDeletePoints(cmd)
	case "search":
		return a.handleSearch(cmd)
	case "hybrid-search":
		return a.handleHybridSearch(cmd)
	case "stream-upsert":
		return a.handleStreamUpsert(cmd)
	case "ping":
		return a.handlePing()
	case "shutdown":
		a.close()
		return Result{Type: "shutdown", Success: true}
	default:
		return sendError(cmd.Type, "NOT_SUPPORTED", fmt.Sprintf("unknown command type: %s", cmd.Type))
	}
}

func (a *adapter) handleInit(cmd Command) Result {
	a.close()
	a.session = nil

	cfg := ferresdb.DefaultConfig(cmd.ServerURL)
	cfg.APIKey = cmd.APIKey
	if cmd.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(cmd.TimeoutMs) * time.Millisecond
	}
	if cmd.MaxRetries != nil {
		cfg.MaxRetries = *cmd.MaxRetries
	}

	client, err := ferresdb.NewClient(cfg)
	if err != nil {
		return sendError("init", "INVALID_CONFIG", err.Error())
	}
	a.client = client

	return Result{
		Type:          "init",
		Success:       true,
		ClientName:    "ferresdb-go",
		ClientVersion: clientVersion,
		Features: &Features{
			Batching:  true,
			Hybrid:    true,
			Streaming: true,
		},
	}
}

func (a *adapter) handleHealth() Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	h, err := a.client.Health(ctx)
	if err != nil {
		return errorResult("health", err)
	}
	return Result{Type: "health", Success: true, Status: 200, Message: h.Status}
}

func (a *adapter) handleCreateCollection(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	distance := ferresdb.Distance(cmd.Distance)
	if distance == "" {
		distance = ferresdb.DistanceCosine
	}

	coll, err := a.client.CreateCollection(ctx, ferresdb.CreateCollectionRequest{
		Name:          cmd.Collection,
		Dimension:     cmd.Dimension,
		Distance:      distance,
		EnableBM25:    cmd.EnableBM25,
		BM25TextField: cmd.BM25TextField,
	})
	if err != nil {
		return errorResult("create-collection", err)
	}
	return Result{Type: "create-collection", Success: true, Status: 201, Collection: coll}
}

func (a *adapter) handleDeleteCollection(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	if err := a.client.DeleteCollection(ctx, cmd.Collection); err != nil {
		return errorResult("delete-collection", err)
	}
	return Result{Type: "delete-collection", Success: true, Status: 200}
}

func (a *adapter) handleUpsert(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	res, err := a.client.Upsert(ctx, cmd.Collection, cmd.Points)
	if err != nil {
		return errorResult("upsert", err)
	}
	return Result{
		Type:     "upsert",
		Success:  true,
		Status:   200,
		Upserted: res.Upserted,
		Failed:   len(res.Failed),
	}
}

func (a *adapter) handleGetPoint(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	p, err := a.client.GetPoint(ctx, cmd.Collection, cmd.ID)
	if err != nil {
		return errorResult("get-point", err)
	}
	return Result{Type: "get-point", Success: true, Status: 200, Point: p}
}

func (a *adapter) handleDeletePoints(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	res, err := a.client.DeletePoints(ctx, cmd.Collection, cmd.IDs)
	if err != nil {
		return errorResult("delete-points", err)
	}
	return Result{Type: "delete-points", Success: true, Status: 200, Deleted: res.Deleted}
}

func (a *adapter) handleSearch(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	res, err := a.client.Search(ctx, cmd.Collection, ferresdb.SearchRequest{
		Vector:   cmd.Vector,
		Limit:    cmd.Limit,
		Filter:   cmd.Filter,
		BudgetMs: cmd.BudgetMs,
	})
	if err != nil {
		return errorResult("search", err)
	}

	hits := make([]Hit, 0, len(res.Results))
	for _, r := range res.Results {
		hits = append(hits, Hit{ID: r.ID, Score: r.Score})
	}
	return Result{Type: "search", Success: true, Status: 200, Results: hits}
}

func (a *adapter) handleHybridSearch(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	res, err := a.client.HybridSearch(ctx, cmd.Collection, ferresdb.HybridSearchRequest{
		Text:   cmd.Text,
		Vector: cmd.Vector,
		Limit:  cmd.Limit,
		Filter: cmd.Filter,
		Fusion: cmd.Fusion,
	})
	if err != nil {
		return errorResult("hybrid-search", err)
	}

	hits := make([]Hit, 0, len(res.Results))
	for _, r := range res.Results {
		hits = append(hits, Hit{ID: r.ID, Score: r.Score})
	}
	return Result{Type: "hybrid-search", Success: true, Status: 200, Results: hits}
}

// connectedSession returns the streaming session, connecting it on first use or
// after a drop.
func (a *adapter) connectedSession(ctx context.Context) (*ferresdb.Session, error) {
	if a.session == nil {
		a.session = a.client.NewSession()
	}
	if a.session.State() == ferresdb.StateConnected {
		return a.session, nil
	}
	if err := a.session.Connect(ctx); err != nil {
		return nil, err
	}
	return a.session, nil
}

func (a *adapter) handleStreamUpsert(cmd Command) Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	s, err := a.connectedSession(ctx)
	if err != nil {
		return errorResult("stream-upsert", err)
	}
	ack, err := s.Upsert(ctx, cmd.Collection, cmd.Points)
	if err != nil {
		return errorResult("stream-upsert", err)
	}
	return Result{
		Type:     "stream-upsert",
		Success:  true,
		Upserted: ack.Upserted,
		Failed:   ack.Failed,
	}
}

func (a *adapter) handlePing() Result {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	s, err := a.connectedSession(ctx)
	if err != nil {
		return errorResult("ping", err)
	}
	rtt, err := s.Ping(ctx)
	if err != nil {
		return errorResult("ping", err)
	}
	return Result{Type: "ping", Success: true, RTTMs: float64(rtt.Microseconds()) / 1000}
}

func errorResult(cmdType string, err error) Result {
	var fe *ferresdb.Error
	if errors.As(err, &fe) {
		return Result{
			Type:        "error",
			Success:     false,
			CommandType: cmdType,
			Status:      fe.StatusCode,
			ErrorCode:   mapErrorCode(fe),
			Estimate:    fe.Estimate,
			Message:     err.Error(),
		}
	}

	var ve *ferresdb.ValidationError
	if errors.As(err, &ve) {
		return sendError(cmdType, "VALIDATION_ERROR", err.Error())
	}

	return Result{
		Type:        "error",
		Success:     false,
		CommandType: cmdType,
		ErrorCode:   "INTERNAL_ERROR",
		Message:     err.Error(),
	}
}

func sendError(cmdType, code, message string) Result {
	return Result{
		Type:        "error",
		Success:     false,
		CommandType: cmdType,
		ErrorCode:   code,
		Message:     message,
	}
}

func mapErrorCode(err *ferresdb.Error) string {
	switch err.Kind {
	case ferresdb.KindNotFound:
		return "NOT_FOUND"
	case ferresdb.KindAlreadyExists:
		return "CONFLICT"
	case ferresdb.KindInvalidDimension:
		return "INVALID_DIMENSION"
	case ferresdb.KindInvalidPayload:
		return "INVALID_PAYLOAD"
	case ferresdb.KindBudgetExceeded:
		return "BUDGET_EXCEEDED"
	case ferresdb.KindInternal:
		return "SERVER_ERROR"
	case ferresdb.KindConnection:
		return "CONNECTION_ERROR"
	default:
		return "UNEXPECTED_STATUS"
	}
}
