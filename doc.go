// Package ferresdb provides a Go client for the FerresDB vector database.
//
// The client talks to the server over HTTP for collection, point, search,
// reindex and key management, and over a persistent streaming connection for
// low-latency writes and change events.
//
// # Basic Usage
//
// Create a client:
//
//	client, err := ferresdb.NewClient(ferresdb.Config{
//	    BaseURL:    "https://db.example.com",
//	    APIKey:     os.Getenv("FERRESDB_API_KEY"),
//	    Timeout:    30 * time.Second,
//	    MaxRetries: 3,
//	    RetryDelay: 100 * time.Millisecond,
//	})
//
// Or load configuration from a YAML file with environment overrides:
//
//	cfg, err := ferresdb.LoadConfig("ferresdb.yaml")
//	client, err := ferresdb.NewClientFromConfig(cfg)
//
// Create a collection and write points:
//
//	_, err = client.CreateCollection(ctx, ferresdb.CreateCollectionRequest{
//	    Name:      "docs",
//	    Dimension: 384,
//	    Distance:  ferresdb.DistanceCosine,
//	})
//	res, err := client.Upsert(ctx, "docs", points)
//
// Upsert splits inputs larger than MaxBatchSize into sequential requests.
//
// Search:
//
//	hits, err := client.Search(ctx, "docs", ferresdb.SearchRequest{
//	    Vector: query,
//	    Limit:  10,
//	    Filter: ferresdb.Filter{"lang": "en"},
//	})
//
// # Retries
//
// Every request is attempted up to MaxRetries+1 times. Server errors (5xx),
// timeouts and network failures are retried after RetryDelay, 2*RetryDelay,
// 4*RetryDelay and so on. Client errors (4xx) are returned immediately.
//
// # Streaming
//
// A Session keeps one connection open:
//
//	session := client.NewSession()
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	session.OnEvent(func(ev ferresdb.Event) {
//	    fmt.Println(ev.Action, ev.PointIDs)
//	})
//	err = session.Subscribe(ctx, "docs", ferresdb.EventFilter{Actions: []string{"upsert"}})
//	ack, err := session.Upsert(ctx, "docs", points)
//
// # Error Handling
//
// Every failure is an *Error whose Kind identifies the condition. The package
// provides sentinel errors for kind matching:
//
//	if errors.Is(err, ferresdb.ErrNotFound) {
//	    // Handle 404
//	}
//	if errors.Is(err, ferresdb.ErrAlreadyExists) {
//	    // Handle 409 conflict on create
//	}
//
// For detailed error information, use errors.As with Error:
//
//	var fe *ferresdb.Error
//	if errors.As(err, &fe) {
//	    fmt.Println("Status:", fe.StatusCode, "Resource:", fe.Resource)
//	}
//
// A successful response whose body does not match the expected shape is
// reported as a *ValidationError.
package ferresdb
