package store

import (
	"time"

	doorstep "github.com/goliatone/go-doorstep"
	"github.com/goliatone/go-doorstep/metrics"
)

type Option func(*Store)

// WithTable overrides the default scenario table.
func WithTable(t doorstep.Table) Option {
	return func(s *Store) {
		if t != nil {
			s.table = t.Clone()
		}
	}
}

// WithKey sets the storage key, usually the driver id.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(l doorstep.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Store) {
		s.metrics = r
	}
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMutationIDs replaces the uuid generator used to tag mutations in logs.
func WithMutationIDs(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.nextID = next
		}
	}
}
