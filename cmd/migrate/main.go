// Command migrate applies the engine's schema migrations with goose.
// It reads the target database from DATABASE_URL and takes a goose
// command as its first argument:
//
//	go run ./cmd/migrate up         # apply pending migrations
//	go run ./cmd/migrate down       # roll back one migration
//	go run ./cmd/migrate status     # list applied and pending
//	go run ./cmd/migrate version    # print schema version
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: migrate <command> [args]")
		fmt.Println("commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("connect to database: %v", err)
	}

	command := os.Args[1]
	if err := goose.RunContext(context.Background(), command, db, migrationsDir, os.Args[2:]...); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
}
