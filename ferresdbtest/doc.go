// Package ferresdbtest provides testing utilities for FerresDB clients.
//
// # MockServer
//
// MockServer is an in-memory implementation of a FerresDB server covering the
// REST surface and the /ws streaming endpoint. Use it for unit testing without
// network dependencies:
//
//	func TestUpsert(t *testing.T) {
//	    server := ferresdbtest.NewMockServer()
//	    defer server.Close()
//
//	    client, err := ferresdb.NewClient(ferresdb.DefaultConfig(server.URL()))
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//
//	    ctx := context.Background()
//	    _, err = client.CreateCollection(ctx, ferresdb.CreateCollectionRequest{
//	        Name: "docs", Dimension: 3, Distance: ferresdb.DistanceCosine,
//	    })
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//
//	    // Verify data was stored
//	    if n, _ := server.PointCount("docs"); n != 0 {
//	        t.Fatal("unexpected points")
//	    }
//	}
//
// Failures can be injected ahead of the real handlers:
//
//	server.FailNext(ferresdbtest.Failure{Status: 503, Code: "internal_error", Message: "overloaded"})
//
// # MockTransport
//
// MockTransport is an http.RoundTripper for testing client behavior
// with controlled responses:
//
//	func TestRetry(t *testing.T) {
//	    transport := ferresdbtest.NewMockTransport()
//
//	    // First request fails with 500
//	    transport.AddError(500, "internal_error", "boom")
//
//	    // Second request succeeds
//	    transport.AddJSONResponse(200, map[string]any{"status": "ok"})
//
//	    client, _ := ferresdb.NewClient(cfg,
//	        ferresdb.WithHTTPClient(transport.Client()),
//	    )
//
//	    // ... test retry behavior
//	}
package ferresdbtest
