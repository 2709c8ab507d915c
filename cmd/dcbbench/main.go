// Command dcbbench is a thin CLI that exercises the storage engine end to
// end: append a batch of synthetic events and time a tag-filtered query
// against them. It lives outside the core package boundary, the way
// the teacher's internal/benchmarks and internal/grpc-app/benchmark
// commands do — a driver over the library, not part of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dcbkit/eventstore/internal/dcbcore"
	"github.com/dcbkit/eventstore/internal/dcbstore"
	"github.com/dcbkit/eventstore/internal/dcbstore/postgres"
)

func main() {
	var (
		dsn        = flag.String("dsn", os.Getenv("DCBKIT_DSN"), "Postgres connection string")
		eventCount = flag.Int("events", 1000, "number of synthetic events to append")
		serve      = flag.Bool("serve", false, "run the gRPC facade instead of the benchmark")
		addr       = flag.String("addr", ":7077", "listen address when -serve is set")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("dcbbench: -dsn or DCBKIT_DSN must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("dcbbench: connect: %v", err)
	}
	defer pool.Close()

	engine, err := postgres.New(ctx, pool, dcbstore.DefaultConfig())
	if err != nil {
		log.Fatalf("dcbbench: bootstrap engine: %v", err)
	}
	defer engine.Close()

	if *serve {
		runServer(engine, *addr)
		return
	}

	runBenchmark(ctx, engine, *eventCount)
}

func runBenchmark(ctx context.Context, engine dcbstore.Engine, n int) {
	stream := dcbcore.NewEventStreamId("bench", "load")
	events := make([]dcbcore.NewEvent, n)
	for i := 0; i < n; i++ {
		events[i] = dcbcore.NewEvent{
			Stream:        stream,
			Type:          "BenchmarkEvent",
			ImmutableData: []byte(fmt.Sprintf(`{"seq":%d}`, i)),
			Tags:          dcbcore.NewTags(dcbcore.NewTag("batch", "bench")),
		}
	}

	start := time.Now()
	stored, err := engine.Append(ctx, dcbcore.NoCriteria(), events)
	if err != nil {
		log.Fatalf("dcbbench: append: %v", err)
	}
	appendElapsed := time.Since(start)
	log.Printf("appended %d events in %s (%.0f events/sec)", len(stored), appendElapsed, float64(len(stored))/appendElapsed.Seconds())

	start = time.Now()
	query := dcbcore.ForEvents(dcbcore.NewEventTypesFilter("BenchmarkEvent"), dcbcore.NewTags(dcbcore.NewTag("batch", "bench")))
	results, err := engine.Query(ctx, query, &stream, nil, dcbcore.NoLimit(), dcbcore.Forward)
	if err != nil {
		log.Fatalf("dcbbench: query: %v", err)
	}
	count := 0
	for r := range results {
		if r.Err != nil {
			log.Fatalf("dcbbench: query stream: %v", r.Err)
		}
		count++
	}
	queryElapsed := time.Since(start)
	log.Printf("queried %d events in %s", count, queryElapsed)
}
