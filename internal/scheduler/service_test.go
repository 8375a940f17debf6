package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"postsched/internal/eventbus"
	"postsched/internal/post"
	"postsched/internal/storage"
	logx "postsched/pkg/logx"
)

type memStore struct {
	writer sync.Mutex

	mu      sync.Mutex
	coll    post.Collection
	saves   int
	saveErr error
}

func (m *memStore) Lock(context.Context) (func(), error) {
	m.writer.Lock()
	return m.writer.Unlock, nil
}

func (m *memStore) Load(context.Context) (post.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Clone(), nil
}

func (m *memStore) Save(_ context.Context, c post.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.coll = c.Clone()
	return nil
}

func (m *memStore) snapshot() post.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coll.Clone()
}

// fakePublishers succeeds for names in ok, fails for everything else and
// maps "x" to "twitter" like the real set. onPublish, when set, runs inside
// every publish call.
type fakePublishers struct {
	ok        map[string]bool
	onPublish func()

	mu    sync.Mutex
	calls []string
}

func (f *fakePublishers) Publish(_ context.Context, name, _ string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "x" {
		key = "twitter"
	}
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.onPublish != nil {
		f.onPublish()
	}
	return key, f.ok[key]
}

func (f *fakePublishers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memStore, *fakePublishers, *clock) {
	t.Helper()
	st := &memStore{}
	pubs := &fakePublishers{ok: map[string]bool{"twitter": true, "mastodon": false}}
	clk := &clock{t: t0.Add(-time.Hour)}
	s := New(Deps{Store: st, Publishers: pubs, Log: logx.Nop(), Now: clk.Now})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, st, pubs, clk
}

func TestCreateThenCheckDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, pubs, clk := newTestService(t)

	id, err := s.Create(ctx, "Hello", []string{"twitter", "mastodon"}, t0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := st.snapshot().Posts; len(got) != 1 || got[0].Posted || got[0].Results != nil {
		t.Fatalf("store after create = %+v", got)
	}

	n, err := s.CheckDue(ctx, t0.Add(-time.Second))
	if err != nil || n != 0 {
		t.Fatalf("CheckDue(before) = %d, %v", n, err)
	}
	if pubs.count() != 0 {
		t.Fatal("nothing should be published before the scheduled time")
	}

	clk.t = t0.Add(time.Second)
	n, err = s.CheckDue(ctx, t0.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("CheckDue(after) = %d, %v", n, err)
	}
	p, ok := s.Get(ctx, id)
	if !ok || !p.Posted || !p.PostedAt.Equal(clk.t) {
		t.Fatalf("post after execute = %+v", p)
	}
	want := map[string]bool{"twitter": true, "mastodon": false}
	if len(p.Results) != len(want) || p.Results["twitter"] != true || p.Results["mastodon"] != false {
		t.Fatalf("results = %v, want %v", p.Results, want)
	}
	if saved := st.snapshot().Posts[0]; !saved.Posted || len(saved.Results) != 2 {
		t.Fatalf("results were not persisted: %+v", saved)
	}
}

func TestCheckDueAtExactTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _, _ := newTestService(t)
	if _, err := s.Create(ctx, "edge", []string{"twitter"}, t0); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CheckDue(ctx, t0); n != 1 {
		t.Fatalf("a post scheduled exactly at now is due, executed %d", n)
	}
}

func TestCheckDueNeverRunsFuturePosts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _, _ := newTestService(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, "p", []string{"twitter"}, t0.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	now := t0.Add(2 * time.Minute)
	n, err := s.CheckDue(ctx, now)
	if err != nil || n != 3 {
		t.Fatalf("CheckDue = %d, %v; want 3", n, err)
	}
	for _, p := range s.List(ctx) {
		if p.Posted && p.ScheduledTime.After(now) {
			t.Fatalf("future post %s was executed", p.ID)
		}
		if !p.Posted && !p.ScheduledTime.After(now) {
			t.Fatalf("due post %s was not executed", p.ID)
		}
	}
	if n, _ := s.CheckDue(ctx, now); n != 0 {
		t.Fatalf("second scan re-executed %d posts", n)
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, pubs, clk := newTestService(t)
	id, _ := s.Create(ctx, "once", []string{"twitter"}, t0)

	if err := s.Execute(ctx, id); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Get(ctx, id)

	clk.t = clk.t.Add(time.Hour)
	if err := s.Execute(ctx, id); err != nil {
		t.Fatal(err)
	}
	second, _ := s.Get(ctx, id)
	if !second.PostedAt.Equal(first.PostedAt) || len(second.Results) != len(first.Results) {
		t.Fatalf("second execute changed the post: %+v -> %+v", first, second)
	}
	if pubs.count() != 1 {
		t.Fatalf("published %d times, want 1", pubs.count())
	}
	if err := s.Execute(ctx, "post_missing"); err != nil {
		t.Fatalf("Execute(missing) = %v, want nil", err)
	}
}

func TestCreateIDsAreUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _, _ := newTestService(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id, err := s.Create(ctx, "same second", []string{"twitter"}, t0)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		if !strings.HasPrefix(id, "post_") {
			t.Fatalf("unexpected id format %q", id)
		}
		seen[id] = true
	}
}

func TestCreateInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, _, _ := newTestService(t)
	cases := []struct {
		name      string
		text      string
		platforms []string
		at        time.Time
	}{
		{"empty text", "  ", []string{"twitter"}, t0},
		{"no platforms", "hi", nil, t0},
		{"blank platforms", "hi", []string{" ", ""}, t0},
		{"no time", "hi", []string{"twitter"}, time.Time{}},
	}
	for _, tc := range cases {
		if _, err := s.Create(ctx, tc.text, tc.platforms, tc.at); !errors.Is(err, post.ErrInvalidRequest) {
			t.Fatalf("%s: err = %v, want ErrInvalidRequest", tc.name, err)
		}
	}
	if st.saves != 0 || len(s.List(ctx)) != 0 {
		t.Fatal("invalid requests must not mutate state")
	}
}

func TestCreateRollsBackOnSaveFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, _, _ := newTestService(t)
	st.saveErr = errors.New("disk full")
	if _, err := s.Create(ctx, "hi", []string{"twitter"}, t0); err == nil {
		t.Fatal("expected save error")
	}
	if len(s.List(ctx)) != 0 {
		t.Fatal("failed create must not leave the post in memory")
	}
}

func TestPublishNow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, pubs, _ := newTestService(t)

	got := s.PublishNow(ctx, "hi", []string{"unknownplat"})
	if len(got) != 1 || got["unknownplat"] != false {
		t.Fatalf("PublishNow(unknownplat) = %v", got)
	}

	got = s.PublishNow(ctx, "hi", []string{"twitter", "mastodon", "x"})
	if len(got) != 2 || !got["twitter"] || got["mastodon"] {
		t.Fatalf("PublishNow = %v", got)
	}
	if pubs.count() != 4 {
		t.Fatalf("duplicates must each be published, got %d calls", pubs.count())
	}
	if st.saves != 0 {
		t.Fatal("PublishNow must not touch the store")
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, pubs, _ := newTestService(t)
	keep, _ := s.Create(ctx, "keep", []string{"twitter"}, t0)
	drop, _ := s.Create(ctx, "drop", []string{"twitter"}, t0)

	if err := s.Cancel(ctx, drop); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	for _, p := range s.List(ctx) {
		if p.ID == drop {
			t.Fatal("cancelled post still listed")
		}
	}
	if got := st.snapshot().Posts; len(got) != 1 || got[0].ID != keep {
		t.Fatalf("store after cancel = %+v", got)
	}
	if err := s.Execute(ctx, drop); err != nil || pubs.count() != 0 {
		t.Fatalf("execute after cancel should be a no-op, err=%v calls=%d", err, pubs.count())
	}
	if err := s.Cancel(ctx, drop); !errors.Is(err, post.ErrNotFound) {
		t.Fatalf("Cancel(again) = %v, want ErrNotFound", err)
	}
}

func TestCancelPostedPost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, _, _ := newTestService(t)
	id, _ := s.Create(ctx, "done", []string{"twitter"}, t0)
	if err := s.Execute(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(ctx, id); !errors.Is(err, post.ErrAlreadyPosted) {
		t.Fatalf("Cancel(posted) = %v, want ErrAlreadyPosted", err)
	}
	if p, ok := s.Get(ctx, id); !ok || !p.Posted {
		t.Fatal("posted post must remain")
	}
	if got := st.snapshot().Posts; len(got) != 1 || !got[0].Posted {
		t.Fatalf("store = %+v", got)
	}
}

func TestCancelRestoresOnSaveFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, _, _ := newTestService(t)
	a, _ := s.Create(ctx, "a", []string{"twitter"}, t0)
	b, _ := s.Create(ctx, "b", []string{"twitter"}, t0)
	c, _ := s.Create(ctx, "c", []string{"twitter"}, t0)

	st.saveErr = errors.New("read-only")
	if err := s.Cancel(ctx, b); err == nil {
		t.Fatal("expected save error")
	}
	got := s.List(ctx)
	if len(got) != 3 || got[0].ID != a || got[1].ID != b || got[2].ID != c {
		t.Fatalf("order after failed cancel = %v", got)
	}
}

func TestExecuteSaveFailureIsNotRepublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, pubs, _ := newTestService(t)
	id, _ := s.Create(ctx, "hi", []string{"twitter"}, t0)

	st.saveErr = errors.New("disk full")
	n, err := s.CheckDue(ctx, t0)
	if n != 1 || err == nil {
		t.Fatalf("CheckDue = %d, %v; want 1 and a save error", n, err)
	}

	// The next tick reloads the stale file; the post must not be published again.
	st.saveErr = nil
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n, _ := s.CheckDue(ctx, t0); n != 0 {
		t.Fatalf("post re-executed after refresh (%d)", n)
	}
	if pubs.count() != 1 {
		t.Fatalf("published %d times, want 1", pubs.count())
	}
	if saved := st.snapshot().Posts; len(saved) != 1 || saved[0].ID != id || !saved[0].Posted {
		t.Fatalf("refresh did not persist the result: %+v", saved)
	}
}

func TestRefreshSeesExternalWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, st, _, _ := newTestService(t)

	st.mu.Lock()
	st.coll.Posts = append(st.coll.Posts, post.Post{ID: "post_1_ext", Text: "from cli", Platforms: []string{"twitter"}, ScheduledTime: t0, Created: t0})
	st.mu.Unlock()

	if len(s.List(ctx)) != 0 {
		t.Fatal("external write visible before refresh")
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CheckDue(ctx, t0); n != 1 {
		t.Fatalf("externally created post not executed")
	}
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(Deps{
		Store:      &memStore{},
		Publishers: &fakePublishers{ok: map[string]bool{"twitter": true}},
		Bus:        bus,
		Now:        func() time.Time { return t0 },
	})
	a, _ := s.Create(ctx, "a", []string{"twitter"}, t0)
	b, _ := s.Create(ctx, "b", []string{"twitter"}, t0.Add(time.Hour))
	_ = s.Execute(ctx, a)
	_ = s.Cancel(ctx, b)

	want := []eventbus.Type{eventbus.PostCreated, eventbus.PostCreated, eventbus.PostPublished, eventbus.PostCancelled}
	for i, w := range want {
		e := <-ch
		if e.Type != w {
			t.Fatalf("event %d = %s, want %s", i, e.Type, w)
		}
	}
}

func TestNextDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _, _, _ := newTestService(t)
	if _, ok := s.NextDue(); ok {
		t.Fatal("empty store has no next due")
	}
	_, _ = s.Create(ctx, "late", []string{"twitter"}, t0.Add(time.Hour))
	_, _ = s.Create(ctx, "early", []string{"twitter"}, t0)
	if next, ok := s.NextDue(); !ok || !next.Equal(t0) {
		t.Fatalf("NextDue = %v, %v", next, ok)
	}
}

func TestFileStoreRoundTripThroughService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scheduled_posts.json")
	pubs := &fakePublishers{ok: map[string]bool{"twitter": true}}

	s := New(Deps{Store: storage.NewFileStore(path, time.UTC, logx.Nop()), Publishers: pubs, Now: func() time.Time { return t0 }})
	if err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	id, err := s.Create(ctx, "persist me", []string{"twitter", "linkedin"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CheckDue(ctx, t0); err != nil {
		t.Fatal(err)
	}

	// A fresh process sees the posted state and does nothing.
	s2 := New(Deps{Store: storage.NewFileStore(path, time.UTC, logx.Nop()), Publishers: pubs})
	if err := s2.Open(ctx); err != nil {
		t.Fatal(err)
	}
	p, ok := s2.Get(ctx, id)
	if !ok || !p.Posted || !p.Results["twitter"] || p.Results["linkedin"] {
		t.Fatalf("reloaded post = %+v", p)
	}
	if n, _ := s2.CheckDue(ctx, t0.Add(time.Hour)); n != 0 {
		t.Fatal("reloaded posted post executed again")
	}
}
