// Command enginesrv exposes novasql.Database.Query (optimize, then execute) over a tiny
// length-prefixed TCP protocol, so the storage and operator core can be
// driven remotely without a SQL surface: a request names a relation and a
// serialized scan/select/project plan, the response streams its tuples
// back frame-by-frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/tuannm99/novasql"
	"github.com/tuannm99/novasql/internal"
	"github.com/tuannm99/novasql/server/novasqlwire"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "novasql.yaml", "Path to novasql yaml config")
	flag.Parse()

	cfg, err := internal.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	addr := os.Getenv("NOVASQL_ADDR")
	if addr == "" {
		port := cfg.Server.Port
		if port == 0 {
			port = 6544
		}
		addr = fmt.Sprintf("127.0.0.1:%d", port)
	}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	db, err := novasql.Open(dataDir, novasql.Config{
		PageSize:     cfg.Page.Size,
		PoolCapacity: cfg.BufferPool.Capacity,
	})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := run(addr, db); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(addr string, db *novasql.Database) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer func() { _ = ln.Close() }()

	slog.Info("enginesrv listening", "addr", addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			slog.Error("accept", "err", err)
			continue
		}
		go handleConn(ctx, conn, db)
	}
}

func handleConn(ctx context.Context, conn net.Conn, db *novasql.Database) {
	defer func() { _ = conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req novasqlwire.PlanRequest
		if err := novasqlwire.ReadFrame(conn, &req); err != nil {
			return
		}

		if err := serveQuery(db, conn, req); err != nil {
			slog.Warn("serve query", "id", req.ID, "err", err)
			return
		}
	}
}

func serveQuery(db *novasql.Database, conn net.Conn, req novasqlwire.PlanRequest) error {
	node, err := req.Plan.ToNode(db.Files, req.Relation)
	if err != nil {
		return novasqlwire.WriteFrame(conn, novasqlwire.PlanResponse{ID: req.ID, Error: err.Error(), Done: true})
	}

	rel, err := db.Query(node)
	if err != nil {
		return novasqlwire.WriteFrame(conn, novasqlwire.PlanResponse{ID: req.ID, Error: err.Error(), Done: true})
	}

	const batchSize = 256
	batch := make([][]any, 0, batchSize)
	flush := func(done bool) error {
		if len(batch) == 0 && !done {
			return nil
		}
		err := novasqlwire.WriteFrame(conn, novasqlwire.PlanResponse{ID: req.ID, Tuples: batch, Done: done})
		batch = batch[:0]
		return err
	}

	scanErr := db.Scan(rel, func(values []any) error {
		batch = append(batch, values)
		if len(batch) >= batchSize {
			return flush(false)
		}
		return nil
	})
	if scanErr != nil {
		return novasqlwire.WriteFrame(conn, novasqlwire.PlanResponse{ID: req.ID, Error: scanErr.Error(), Done: true})
	}
	return flush(true)
}
