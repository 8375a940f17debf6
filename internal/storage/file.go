package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"postsched/internal/post"
	logx "postsched/pkg/logx"
)

// DefaultPath matches the file name used by earlier versions of the tool, so
// existing stores keep working.
const DefaultPath = "scheduled_posts.json"

const lockRetryDelay = 20 * time.Millisecond

// FileStore keeps the post collection in a single JSON file.
//
// Writers coordinate through Lock, an exclusive flock on "<path>.lock" that
// other processes using the same store honour too. Reads need no lock: Save
// replaces the file atomically.
type FileStore struct {
	path string
	loc  *time.Location
	log  logx.Logger

	mu sync.Mutex
	// sem serializes Lock holders within the process; one flock handle
	// would otherwise be re-entrant for every goroutine.
	sem chan struct{}
}

func NewFileStore(path string, loc *time.Location, log logx.Logger) *FileStore {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileStore{path: path, loc: loc, log: log, sem: make(chan struct{}, 1)}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) lockPath() string { return s.path + ".lock" }

// Lock takes the store's exclusive write lock, waiting until it is free or
// ctx is done. Callers reload, mutate and save while holding it, then call
// the returned unlock.
func (s *FileStore) Lock(ctx context.Context) (unlock func(), err error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-s.sem }

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		release()
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	fl := flock.New(s.lockPath())
	ok, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		_ = fl.Close()
		release()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("lock post store: %w", err)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			s.log.Warn("store unlock failed", logx.String("path", fl.Path()), logx.Err(err))
		}
		release()
	}, nil
}

// Load reads the whole collection. A missing file yields an empty collection.
// Anything present but unparseable yields *post.StorageCorruptError.
func (s *FileStore) Load(ctx context.Context) (post.Collection, error) {
	if err := ctx.Err(); err != nil {
		return post.Collection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("store file missing; starting empty", logx.String("path", s.path))
			return post.Collection{Posts: []post.Post{}}, nil
		}
		return post.Collection{}, fmt.Errorf("read post store: %w", err)
	}
	c, err := decode(b, s.loc)
	if err != nil {
		return post.Collection{}, &post.StorageCorruptError{Path: s.path, Err: err}
	}
	s.log.Debug("store loaded", logx.String("path", s.path), logx.Int("posts", len(c.Posts)))
	return c, nil
}

// Save replaces the file contents with c. The write goes to a temp file in the
// same directory which is then renamed over the target.
func (s *FileStore) Save(ctx context.Context, c post.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encode(c)
	if err != nil {
		return fmt.Errorf("encode post store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace store file: %w", err)
	}
	s.log.Debug("store saved", logx.String("path", s.path), logx.Int("posts", len(c.Posts)))
	return nil
}
