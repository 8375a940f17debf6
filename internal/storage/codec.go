package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"postsched/internal/post"
)

type fileDoc struct {
	Posts []wirePost `json:"posts"`
}

type wirePost struct {
	ID            string          `json:"id"`
	Text          string          `json:"text"`
	Platforms     []string        `json:"platforms"`
	ScheduledTime string          `json:"scheduled_time"`
	Created       string          `json:"created"`
	Posted        bool            `json:"posted"`
	PostedAt      string          `json:"posted_at,omitempty"`
	Results       map[string]bool `json:"results,omitempty"`
}

// naiveLayouts are accepted on read for files written without a UTC offset
// (ISO-8601 local time). They are interpreted in the store's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

func encode(c post.Collection) ([]byte, error) {
	doc := fileDoc{Posts: make([]wirePost, 0, len(c.Posts))}
	for _, p := range c.Posts {
		w := wirePost{
			ID:            p.ID,
			Text:          p.Text,
			Platforms:     p.Platforms,
			ScheduledTime: formatTime(p.ScheduledTime),
			Created:       formatTime(p.Created),
			Posted:        p.Posted,
		}
		if w.Platforms == nil {
			w.Platforms = []string{}
		}
		if p.Posted {
			w.PostedAt = formatTime(p.PostedAt)
			w.Results = p.Results
			if w.Results == nil {
				w.Results = map[string]bool{}
			}
		}
		doc.Posts = append(doc.Posts, w)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func decode(data []byte, loc *time.Location) (post.Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return post.Collection{}, errors.New("empty file")
	}
	if trimmed[0] != '{' {
		return post.Collection{}, errors.New("top-level value is not an object")
	}

	var doc fileDoc
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&doc); err != nil {
		return post.Collection{}, err
	}
	if dec.More() {
		return post.Collection{}, errors.New("trailing data after document")
	}

	out := post.Collection{Posts: make([]post.Post, 0, len(doc.Posts))}
	seen := make(map[string]struct{}, len(doc.Posts))
	for i, w := range doc.Posts {
		if strings.TrimSpace(w.ID) == "" {
			return post.Collection{}, fmt.Errorf("posts[%d]: missing id", i)
		}
		if _, dup := seen[w.ID]; dup {
			return post.Collection{}, fmt.Errorf("posts[%d]: duplicate id %q", i, w.ID)
		}
		seen[w.ID] = struct{}{}

		sched, err := parseTime(w.ScheduledTime, loc)
		if err != nil {
			return post.Collection{}, fmt.Errorf("posts[%d].scheduled_time: %w", i, err)
		}
		p := post.Post{
			ID:            w.ID,
			Text:          w.Text,
			Platforms:     w.Platforms,
			ScheduledTime: sched,
			Posted:        w.Posted,
		}
		if p.Platforms == nil {
			p.Platforms = []string{}
		}
		if w.Created != "" {
			if p.Created, err = parseTime(w.Created, loc); err != nil {
				return post.Collection{}, fmt.Errorf("posts[%d].created: %w", i, err)
			}
		}
		if p.Posted {
			if w.PostedAt != "" {
				if p.PostedAt, err = parseTime(w.PostedAt, loc); err != nil {
					return post.Collection{}, fmt.Errorf("posts[%d].posted_at: %w", i, err)
				}
			}
			p.Results = w.Results
			if p.Results == nil {
				p.Results = map[string]bool{}
			}
		}
		out.Posts = append(out.Posts, p)
	}
	return out, nil
}
