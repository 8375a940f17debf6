package publisher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	logx "postsched/pkg/logx"
)

// Set is the registry of known platforms.
//
// A platform registered with a nil Publisher is known but not configured;
// publishing to it reports false.
type Set struct {
	log logx.Logger

	mu      sync.RWMutex
	pubs    map[string]Publisher
	aliases map[string]string
}

func NewSet(log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Set{
		log:     log,
		pubs:    map[string]Publisher{},
		aliases: map[string]string{},
	}
}

// Register adds (or replaces) a platform under its canonical name plus aliases.
// Pass a nil Publisher to mark the platform as known but not configured.
func (s *Set) Register(name string, p Publisher, aliases ...string) {
	name = Normalize(name)
	if name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubs[name] = p
	for _, a := range aliases {
		if a = Normalize(a); a != "" && a != name {
			s.aliases[a] = name
		}
	}
}

// Normalize trims and lower-cases a platform name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve maps an input name to its canonical platform name.
// known is false for names that are neither registered nor aliased.
func (s *Set) Resolve(name string) (canonical string, known bool) {
	n := Normalize(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.aliases[n]; ok {
		n = c
	}
	_, known = s.pubs[n]
	return n, known
}

// Configured reports whether name resolves to a platform with a live publisher.
func (s *Set) Configured(name string) bool {
	c, known := s.Resolve(name)
	if !known {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pubs[c] != nil
}

// Platforms lists canonical platform names in sorted order.
func (s *Set) Platforms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pubs))
	for name := range s.pubs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Publish sends text to the named platform and reports the result key and
// success. It never returns an error: unknown platforms, missing
// configuration, transport failures and panics all degrade to false.
//
// The key is the canonical platform name for known platforms (so "x"
// reports as "twitter") and the normalized input otherwise.
func (s *Set) Publish(ctx context.Context, name, text string) (key string, ok bool) {
	key, known := s.Resolve(name)
	log := s.log.With(logx.String("platform", key))
	if !known {
		log.Warn("unknown platform", logx.Err(ErrUnknown))
		return key, false
	}

	s.mu.RLock()
	p := s.pubs[key]
	s.mu.RUnlock()
	if p == nil {
		log.Warn("platform not configured", logx.Err(ErrNotConfigured))
		return key, false
	}

	if err := safePublish(ctx, p, text); err != nil {
		if errors.Is(err, ErrNotSupported) {
			log.Warn("platform posting not available", logx.Err(err))
		} else {
			log.Error("publish failed", logx.Err(err))
		}
		return key, false
	}
	log.Info("published", logx.Int("chars", len([]rune(text))))
	return key, true
}

func safePublish(ctx context.Context, p Publisher, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in %s publisher: %v\n%s", ErrUnavailable, p.Platform(), r, debug.Stack())
		}
	}()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := p.Publish(ctx, text); err != nil {
		if errors.Is(err, ErrNotSupported) || errors.Is(err, ErrUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
