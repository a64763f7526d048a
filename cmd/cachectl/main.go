// cachectl is a small admin utility for scanstore deployments: it creates
// database schemas, reports cache statistics for a package lookup, and
// sweeps duplicate entries out of relational backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/yourorg/scanstore/internal/config"
	"github.com/yourorg/scanstore/internal/model"
	"github.com/yourorg/scanstore/internal/storage"
	"github.com/yourorg/scanstore/internal/storage/pgbackend"
)

func main() {
	// Load environment variables from .env files if present. This helps local dev.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	var (
		configPath = flag.String("config", "", "path to scanstore.yaml (default: search working directory)")
		batchSize  = flag.Int("batch-size", 50, "packages to deduplicate per batch")
		pkgType    = flag.String("type", "", "package ecosystem type for lookup")
		namespace  = flag.String("namespace", "", "package namespace for lookup")
		name       = flag.String("name", "", "package name for lookup")
		version    = flag.String("version", "", "package version for lookup")
	)
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: cachectl [flags] init|stats|dedup")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	switch cmd {
	case "init":
		if err := runInit(ctx, cfg); err != nil {
			log.Fatal(err)
		}
	case "stats":
		id := model.Identifier{Type: *pkgType, Namespace: *namespace, Name: *name, Version: *version}
		if err := runStats(ctx, cfg, id); err != nil {
			log.Fatal(err)
		}
	case "dedup":
		if err := runDedup(ctx, cfg, *batchSize); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown command %q", cmd)
	}
}

// runInit creates the schema of every configured postgres backend.
func runInit(ctx context.Context, cfg *config.Config) error {
	for name, b := range cfg.Storage.Backends {
		if b.Kind != config.KindPostgres {
			continue
		}
		backend, err := pgbackend.Open(ctx, b.Postgres.URL)
		if err != nil {
			return fmt.Errorf("backend %s: %w", name, err)
		}
		err = backend.EnsureSchema(ctx)
		backend.Close()
		if err != nil {
			return fmt.Errorf("backend %s: ensure schema: %w", name, err)
		}
		log.Infof("backend %s: schema ensured", name)
	}
	return nil
}

// runStats performs one lookup through the full reader chain and prints the
// per-cache hit counters afterwards.
func runStats(ctx context.Context, cfg *config.Config, id model.Identifier) error {
	if id.Name == "" {
		return fmt.Errorf("stats requires -type, -name and -version")
	}
	composite, closeAll, err := config.NewComposite(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	// No matcher: show everything stored, regardless of scanner version.
	results, err := composite.Read(ctx, model.Package{ID: id}, nil)
	if err != nil {
		return err
	}
	results = storage.Deduplicate(results)
	fmt.Printf("%s: %d stored result(s)\n", id, len(results))
	for _, r := range results {
		fmt.Printf("  %s at %s\n", r.Scanner, model.ProvenanceKey(r.Provenance))
	}
	for _, reader := range composite.Readers() {
		stats := reader.Stats()
		fmt.Printf("cache %s: %d reads, %d hits\n", reader.Label(), stats.NumReads, stats.NumHits)
	}
	return nil
}

// runDedup sweeps duplicate rows out of every postgres backend in batches
// until none remain.
func runDedup(ctx context.Context, cfg *config.Config, batchSize int) error {
	for name, b := range cfg.Storage.Backends {
		if b.Kind != config.KindPostgres {
			continue
		}
		backend, err := pgbackend.Open(ctx, b.Postgres.URL)
		if err != nil {
			return fmt.Errorf("backend %s: %w", name, err)
		}
		total := 0
		for {
			deleted, err := backend.DeduplicateStored(ctx, batchSize)
			if err != nil {
				backend.Close()
				return fmt.Errorf("backend %s: %w", name, err)
			}
			total += deleted
			if deleted == 0 {
				break
			}
			log.Infof("backend %s: deleted %d duplicate rows", name, deleted)
		}
		backend.Close()
		log.Infof("backend %s: dedup sweep done, %d rows removed", name, total)
	}
	return nil
}
