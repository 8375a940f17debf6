// Package post defines the scheduled post record and the errors shared by
// the store and the scheduler.
package post

import (
	"maps"
	"slices"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
)

// Post is one unit of content plus its target platforms and timing metadata.
//
// Results is nil until the post has been processed; after that it holds one
// entry per platform attempted, keyed by the platform's reported name.
type Post struct {
	ID            string
	Text          string
	Platforms     []string
	ScheduledTime time.Time
	Created       time.Time
	Posted        bool
	PostedAt      time.Time
	Results       map[string]bool
}

func (p Post) Status() Status {
	if p.Posted {
		return StatusPosted
	}
	return StatusPending
}

// Due reports whether the post is pending and its scheduled time is at or before now.
func (p Post) Due(now time.Time) bool {
	return !p.Posted && !p.ScheduledTime.After(now)
}

// Clone returns a deep copy so callers can't mutate store-owned slices or maps.
func (p Post) Clone() Post {
	cp := p
	cp.Platforms = slices.Clone(p.Platforms)
	if p.Results != nil {
		cp.Results = maps.Clone(p.Results)
	}
	return cp
}

// Collection is the full ordered set of posts held by the store.
type Collection struct {
	Posts []Post
}

// Index returns the position of id, or -1.
func (c *Collection) Index(id string) int {
	for i := range c.Posts {
		if c.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection) Has(id string) bool { return c.Index(id) >= 0 }

// Remove deletes the post with id, keeping order. It reports whether anything was removed.
func (c *Collection) Remove(id string) bool {
	i := c.Index(id)
	if i < 0 {
		return false
	}
	c.Posts = slices.Delete(c.Posts, i, i+1)
	return true
}

func (c Collection) Clone() Collection {
	out := Collection{Posts: make([]Post, 0, len(c.Posts))}
	for _, p := range c.Posts {
		out.Posts = append(out.Posts, p.Clone())
	}
	return out
}
