package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

const (
	serversBucketName = "servers"
	eventsBucketName  = "events"
	metaBucketName    = "meta"

	schemaVersionKey = "schema_version"
	schemaVersion    = "1"
)

// Options are the repository factory inputs.
type Options struct {
	Path               string
	CacheSize          int
	CacheTTL           time.Duration
	EnableWatchers     bool
	EnableEvents       bool
	EnableTransactions bool
	ConnectionTimeout  time.Duration
	QueryTimeout       time.Duration
	RetryCount         int
	// EncryptionKey enables at-rest encryption of server records when set.
	EncryptionKey string
}

func DefaultOptions(path string) Options {
	return Options{
		Path:               path,
		CacheSize:          256,
		CacheTTL:           30 * time.Second,
		EnableWatchers:     true,
		EnableEvents:       true,
		EnableTransactions: true,
		ConnectionTimeout:  time.Second,
		QueryTimeout:       5 * time.Second,
	}
}

// Store is the bbolt-backed Repository implementation.
type Store struct {
	opts   Options
	logger *zap.Logger
	cipher *recordCipher
	cache  *serverCache
	watch  *watchHub

	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
}

func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, domain.E(domain.CodeRepository, "store.open", "store path is required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.E(domain.CodeRepository, "store.open", "ensure store dir", err)
	}

	timeout := opts.ConnectionTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	var db *bolt.DB
	var err error
	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
		if err == nil {
			break
		}
		logger.Warn("open attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.open", fmt.Sprintf("open %s", path), err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	cipher, err := newRecordCipher(opts.EncryptionKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		opts:   opts,
		logger: logger,
		cipher: cipher,
		db:     db,
	}
	if opts.CacheSize > 0 {
		s.cache = newServerCache(opts.CacheSize, opts.CacheTTL)
	}
	if opts.EnableWatchers {
		s.watch = newWatchHub()
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.watch != nil {
		s.watch.closeAll()
	}
	return s.db.Close()
}

// HealthCheck verifies the database file is reachable and the schema intact.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.view(ctx, func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucketName))
		if meta == nil {
			return domain.E(domain.CodeRepository, "store.healthCheck", "missing meta bucket", nil)
		}
		if string(meta.Get([]byte(schemaVersionKey))) != schemaVersion {
			return domain.E(domain.CodeRepository, "store.healthCheck", "schema version mismatch", nil)
		}
		return nil
	})
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{serversBucketName, eventsBucketName, metaBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return domain.E(domain.CodeRepository, "store.open", fmt.Sprintf("create bucket %s", name), err)
			}
		}
		meta := tx.Bucket([]byte(metaBucketName))
		if meta.Get([]byte(schemaVersionKey)) == nil {
			return meta.Put([]byte(schemaVersionKey), []byte(schemaVersion))
		}
		return nil
	})
}

func (s *Store) view(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := s.checkCtx(ctx, "store.view"); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(*bolt.Tx) error) error {
	if err := s.checkCtx(ctx, "store.update"); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.Update(fn)
}

// checkCtx enforces the query timeout boundary before entering bbolt, which
// has no context support of its own.
func (s *Store) checkCtx(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.E(domain.CodeRepository, op, "context done", err)
	}
	if s.opts.QueryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
			return domain.E(domain.CodeRepository, op, "query deadline exceeded", ctx.Err())
		}
	}
	return nil
}
