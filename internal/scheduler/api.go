package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"postsched/internal/eventbus"
	"postsched/internal/post"
	logx "postsched/pkg/logx"
)

// NormalizeRequest trims text and platform names and drops empty platform
// entries. Duplicates are kept in order.
func NormalizeRequest(text string, platforms []string) (string, []string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, post.Invalid("text is empty")
	}
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return "", nil, post.Invalid("no platforms given")
	}
	return text, out, nil
}

// Create appends a pending post and persists it. Nothing is published.
func (s *Service) Create(ctx context.Context, text string, platforms []string, at time.Time) (string, error) {
	text, platforms, err := NormalizeRequest(text, platforms)
	if err != nil {
		return "", err
	}
	if at.IsZero() {
		return "", post.Invalid("scheduled time is required")
	}
	s.warnDuplicates(platforms)

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.reloadLocked(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	now := s.now()
	id, err := newID(now, s.coll.Has)
	if err != nil {
		return "", err
	}
	p := post.Post{
		ID:            id,
		Text:          text,
		Platforms:     platforms,
		ScheduledTime: at,
		Created:       now,
	}
	n := len(s.coll.Posts)
	s.coll.Posts = append(s.coll.Posts, p)
	if err := s.saveLocked(ctx); err != nil {
		s.coll.Posts = s.coll.Posts[:n]
		return "", err
	}

	s.log.Info("post scheduled", logx.String("id", id), logx.Time("at", at), logx.Strings("platforms", platforms))
	s.emit(eventbus.Event{Type: eventbus.PostCreated, PostID: id, Platforms: append([]string(nil), platforms...)})
	return id, nil
}

// PublishNow publishes text to each platform in order and returns the
// per-platform results. A platform named twice is published twice; the
// later result wins. The store is not touched.
func (s *Service) PublishNow(ctx context.Context, text string, platforms []string) map[string]bool {
	s.warnDuplicates(platforms)
	return s.publishAll(ctx, text, platforms)
}

func (s *Service) publishAll(ctx context.Context, text string, platforms []string) map[string]bool {
	results := make(map[string]bool, len(platforms))
	for _, name := range platforms {
		key, ok := s.pubs.Publish(ctx, name, text)
		results[key] = ok
	}
	return results
}

// Execute publishes a pending post and records the results. Missing or
// already posted ids are a no-op.
func (s *Service) Execute(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.reloadLocked(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	_, err = s.executeLocked(ctx, id)
	return err
}

// executeLocked reports whether the post was executed. Callers hold s.mu
// and the store lock. Once publishing starts it runs to completion even if
// ctx is cancelled; per-platform timeouts still apply.
func (s *Service) executeLocked(ctx context.Context, id string) (bool, error) {
	i := s.coll.Index(id)
	if i < 0 || s.coll.Posts[i].Posted {
		return false, nil
	}
	p := s.coll.Posts[i]
	log := s.log.With(logx.String("id", id))
	log.Info("executing post", logx.Strings("platforms", p.Platforms))

	results := s.publishAll(context.WithoutCancel(ctx), p.Text, p.Platforms)

	p.Posted = true
	p.PostedAt = s.now()
	p.Results = results
	s.coll.Posts[i] = p
	s.unsaved[id] = p.Clone()

	ok := 0
	for _, v := range results {
		if v {
			ok++
		}
	}
	log.Info("post executed", logx.Int("succeeded", ok), logx.Int("platforms", len(results)))

	err := s.saveLocked(context.WithoutCancel(ctx))
	if err != nil {
		log.Error("results not persisted; will retry on next refresh", logx.Err(err))
	}
	s.emit(eventbus.Event{Type: eventbus.PostPublished, Time: p.PostedAt, PostID: id, Results: p.Clone().Results})
	return true, err
}

// CheckDue executes every pending post scheduled at or before now, one at a
// time in store order, and returns how many were executed. It stops early on
// a storage error or when ctx is cancelled between posts.
//
// The store stays locked for the whole pass, so writers in other processes
// wait and then see the posted state.
func (s *Service) CheckDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.reloadLocked(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	var due []string
	for _, p := range s.coll.Posts {
		if p.Due(now) {
			due = append(due, p.ID)
		}
	}

	n := 0
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ran, err := s.executeLocked(ctx, id)
		if ran {
			n++
		}
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Cancel removes a pending post. It fails with post.ErrNotFound for unknown
// ids and post.ErrAlreadyPosted for posts that were already executed.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.reloadLocked(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	i := s.coll.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", post.ErrNotFound, id)
	}
	if s.coll.Posts[i].Posted {
		return fmt.Errorf("%w: %s", post.ErrAlreadyPosted, id)
	}
	removed := s.coll.Posts[i]
	s.coll.Remove(id)
	if err := s.saveLocked(ctx); err != nil {
		s.coll.Posts = slices.Insert(s.coll.Posts, i, removed)
		return err
	}
	s.log.Info("post cancelled", logx.String("id", id))
	s.emit(eventbus.Event{Type: eventbus.PostCancelled, PostID: id})
	return nil
}

// List returns a copy of every post in insertion order.
func (s *Service) List(context.Context) []post.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Clone().Posts
}

func (s *Service) Get(_ context.Context, id string) (post.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.coll.Index(id)
	if i < 0 {
		return post.Post{}, false
	}
	return s.coll.Posts[i].Clone(), true
}

// NextDue returns the earliest scheduled time among pending posts.
func (s *Service) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, p := range s.coll.Posts {
		if p.Posted {
			continue
		}
		if next.IsZero() || p.ScheduledTime.Before(next) {
			next = p.ScheduledTime
		}
	}
	return next, !next.IsZero()
}

func (s *Service) warnDuplicates(platforms []string) {
	seen := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		k := strings.ToLower(strings.TrimSpace(p))
		if _, dup := seen[k]; dup {
			s.log.Warn("platform listed more than once; the last result wins", logx.String("platform", k))
			continue
		}
		seen[k] = struct{}{}
	}
}
