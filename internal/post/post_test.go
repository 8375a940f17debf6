package post

import (
	"errors"
	"io"
	"testing"
	"time"
)

func TestDueAndStatus(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := Post{ID: "a", ScheduledTime: at}

	if p.Due(at.Add(-time.Second)) {
		t.Fatal("post due before its scheduled time")
	}
	if !p.Due(at) {
		t.Fatal("post not due at its exact scheduled time")
	}
	if p.Status() != StatusPending {
		t.Fatalf("status = %s", p.Status())
	}

	p.Posted = true
	if p.Due(at.Add(time.Hour)) {
		t.Fatal("posted post reported due")
	}
	if p.Status() != StatusPosted {
		t.Fatalf("status = %s", p.Status())
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	c := Collection{Posts: []Post{{ID: "a", Platforms: []string{"twitter"}, Results: map[string]bool{"twitter": true}}}}
	cp := c.Clone()
	cp.Posts[0].Platforms[0] = "mastodon"
	cp.Posts[0].Results["twitter"] = false

	if c.Posts[0].Platforms[0] != "twitter" || !c.Posts[0].Results["twitter"] {
		t.Fatalf("clone shares state with original: %+v", c.Posts[0])
	}
	if (Post{}).Clone().Results != nil {
		t.Fatal("clone of pending post should keep nil results")
	}
}

func TestCollectionRemoveKeepsOrder(t *testing.T) {
	t.Parallel()

	c := Collection{Posts: []Post{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	if !c.Remove("b") {
		t.Fatal("remove b failed")
	}
	if c.Remove("b") {
		t.Fatal("second remove should report false")
	}
	if len(c.Posts) != 2 || c.Posts[0].ID != "a" || c.Posts[1].ID != "c" {
		t.Fatalf("posts = %+v", c.Posts)
	}
	if c.Index("c") != 1 || c.Has("zzz") {
		t.Fatal("index lookup mismatch")
	}
}

func TestErrorsMatch(t *testing.T) {
	t.Parallel()

	err := error(&StorageCorruptError{Path: "posts.json", Err: io.ErrUnexpectedEOF})
	if !errors.Is(err, ErrStorageCorrupt) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("corrupt error does not unwrap: %v", err)
	}
	var sc *StorageCorruptError
	if !errors.As(err, &sc) || sc.Path != "posts.json" {
		t.Fatal("errors.As failed")
	}

	inv := Invalid("text is empty")
	if !errors.Is(inv, ErrInvalidRequest) || inv.Error() != "invalid request: text is empty" {
		t.Fatalf("Invalid = %v", inv)
	}
}
