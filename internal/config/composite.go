package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/yourorg/scanstore/internal/storage"
	"github.com/yourorg/scanstore/internal/storage/fsbackend"
	"github.com/yourorg/scanstore/internal/storage/pgbackend"
	"github.com/yourorg/scanstore/internal/storage/s3backend"
)

// NewComposite builds the composite cache described by the configuration.
// Omitting both the readers and writers lists uses every configured backend
// as both, in name order; configuring no backends at all falls back to a
// single local-file backend under the user cache directory. The returned
// close function releases any connection pools.
func NewComposite(ctx context.Context, cfg *Config) (*storage.Composite, func(), error) {
	backends := cfg.Storage.Backends
	if len(backends) == 0 {
		root, err := defaultFileRoot()
		if err != nil {
			return nil, nil, err
		}
		log.Infof("no storage backends configured, using local file storage at %s", root)
		backends = map[string]Backend{
			"default": {Kind: KindFile, File: FileOptions{Root: root}},
		}
	}

	readerNames := cfg.Storage.Readers
	writerNames := cfg.Storage.Writers
	if len(readerNames) == 0 && len(writerNames) == 0 {
		names := make([]string, 0, len(backends))
		for name := range backends {
			names = append(names, name)
		}
		sort.Strings(names)
		readerNames, writerNames = names, names
	}

	caches := make(map[string]*storage.Cache, len(backends))
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	newCache := func(name string) (*storage.Cache, error) {
		if cache, ok := caches[name]; ok {
			return cache, nil
		}
		b, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("backend %q is not configured", name)
		}
		backend, closer, err := openBackend(ctx, name, b)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		cache := storage.NewCache(name, backend, b.MaxParallel)
		caches[name] = cache
		return cache, nil
	}

	readers := make([]*storage.Cache, 0, len(readerNames))
	for _, name := range readerNames {
		cache, err := newCache(name)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		readers = append(readers, cache)
	}
	writers := make([]*storage.Cache, 0, len(writerNames))
	for _, name := range writerNames {
		cache, err := newCache(name)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		writers = append(writers, cache)
	}

	return storage.NewComposite(readers, writers), closeAll, nil
}

func openBackend(ctx context.Context, name string, b Backend) (storage.PackageBackend, func(), error) {
	switch b.Kind {
	case KindFile:
		backend, err := fsbackend.New(b.File.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %s: %w", name, err)
		}
		return backend, nil, nil
	case KindPostgres:
		backend, err := pgbackend.Open(ctx, b.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %s (%s): %w", name, b.Postgres, err)
		}
		return backend, backend.Close, nil
	case KindS3:
		backend, err := s3backend.New(b.S3.Endpoint, b.S3.AccessKey, b.S3.SecretKey, b.S3.UseSSL, b.S3.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %s (%s): %w", name, b.S3, err)
		}
		return backend, nil, nil
	}
	return nil, nil, fmt.Errorf("backend %s: unknown kind %q", name, b.Kind)
}

func defaultFileRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("determine user cache directory: %w", err)
	}
	return filepath.Join(dir, "scanstore"), nil
}
