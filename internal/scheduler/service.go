package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"postsched/internal/eventbus"
	"postsched/internal/post"
	logx "postsched/pkg/logx"
)

// Store persists the whole post collection. Lock excludes other writers of
// the same store, including other processes, for one load-mutate-save cycle.
type Store interface {
	Lock(ctx context.Context) (unlock func(), err error)
	Load(ctx context.Context) (post.Collection, error)
	Save(ctx context.Context, c post.Collection) error
}

// Publishers publishes text to a named platform. It reports the key the
// result is recorded under and whether the publish succeeded; it never fails.
type Publishers interface {
	Publish(ctx context.Context, platform, text string) (key string, ok bool)
}

type Deps struct {
	Store      Store
	Publishers Publishers
	Log        logx.Logger
	// Bus is optional.
	Bus eventbus.Bus
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store Store
	pubs  Publishers
	log   logx.Logger
	bus   eventbus.Bus
	now   func() time.Time

	mu   sync.Mutex
	coll post.Collection
	// unsaved holds posts executed in this process whose state hasn't been
	// persisted yet (the save after publishing failed).
	unsaved map[string]post.Post
}

func New(d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:   d.Store,
		pubs:    d.Publishers,
		log:     d.Log.With(logx.String("comp", "scheduler")),
		bus:     d.Bus,
		now:     d.Now,
		unsaved: map[string]post.Post{},
	}
}

// Open loads the collection from the store. A corrupt store is returned as
// is (post.ErrStorageCorrupt) and the file is left alone.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.coll = c
	s.log.Debug("store loaded", logx.Int("posts", len(c.Posts)))
	return nil
}

// Refresh reloads the collection so posts created or cancelled by another
// invocation are seen. Results this process failed to persist are written
// again.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.unsaved) == 0 {
		c, err := s.store.Load(ctx)
		if err != nil {
			return err
		}
		s.coll = c
		return nil
	}

	unlock, err := s.reloadLocked(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	if len(s.unsaved) == 0 {
		return nil
	}
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	s.log.Info("persisted previously unsaved results")
	return nil
}

// reloadLocked takes the store lock and replaces the in-memory collection
// with the stored one. Posts this process executed but could not save stay
// posted. Callers hold s.mu and call unlock once their save is done.
func (s *Service) reloadLocked(ctx context.Context) (unlock func(), err error) {
	unlock, err = s.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Load(ctx)
	if err != nil {
		unlock()
		return nil, err
	}
	for id, p := range s.unsaved {
		i := c.Index(id)
		if i < 0 || c.Posts[i].Posted {
			delete(s.unsaved, id)
			continue
		}
		c.Posts[i] = p.Clone()
	}
	s.coll = c
	return unlock, nil
}

// saveLocked persists the current collection. Callers hold s.mu.
func (s *Service) saveLocked(ctx context.Context) error {
	if err := s.store.Save(ctx, s.coll); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	clear(s.unsaved)
	return nil
}

func (s *Service) emit(e eventbus.Event) {
	if s.bus == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	s.bus.Publish(e)
}
