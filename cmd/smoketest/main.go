// Command smoketest checks connectivity to the optional backing
// services a replica can be configured to use: Redis or Postgres for
// --persist, and NATS for --transport=nats. It does not touch the BFT
// protocol itself, only the infrastructure around it.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
)

type result struct {
	Component string
	OK        bool
	Detail    string
}

func main() {
	redisAddr := flag.String("redis-addr", "", "redis address to check, e.g. localhost:6379")
	pgDSN := flag.String("postgres-dsn", "", "postgres DSN to check")
	natsURL := flag.String("nats-url", "", "NATS URL to check, e.g. nats://localhost:4222")
	flag.Parse()

	var results []result
	if *redisAddr != "" {
		results = append(results, checkRedis(*redisAddr))
	}
	if *pgDSN != "" {
		results = append(results, checkPostgres(*pgDSN))
	}
	if *natsURL != "" {
		results = append(results, checkNATS(*natsURL))
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to check: pass at least one of --redis-addr, --postgres-dsn, --nats-url")
		os.Exit(2)
	}

	failed := 0
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "FAILED"
			failed++
		}
		fmt.Printf("%-10s %-7s %s\n", r.Component, status, r.Detail)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func checkRedis(addr string) result {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return result{Component: "redis", OK: false, Detail: err.Error()}
	}
	return result{Component: "redis", OK: true, Detail: addr}
}

func checkPostgres(dsn string) result {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return result{Component: "postgres", OK: false, Detail: err.Error()}
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return result{Component: "postgres", OK: false, Detail: err.Error()}
	}
	return result{Component: "postgres", OK: true, Detail: "connected"}
}

func checkNATS(url string) result {
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second))
	if err != nil {
		return result{Component: "nats", OK: false, Detail: err.Error()}
	}
	defer nc.Close()
	return result{Component: "nats", OK: true, Detail: url}
}
