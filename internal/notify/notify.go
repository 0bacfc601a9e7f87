package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrNotRetryable = errors.New("notification has no retry action")
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindFailure  Kind = "failure"
)

type Notice struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Label       string        `json:"label"`
	Message     string        `json:"message"`
	Attempt     int           `json:"attempt,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Delay       time.Duration `json:"delay_ns,omitempty"`
	Retryable   bool          `json:"retryable"`
	CreatedAt   time.Time     `json:"created_at"`
}

type entry struct {
	Notice
	retry func(ctx context.Context) error
}

// Center keeps the notices of this process. Progress notices are replaced per
// label; failure notices stay until dismissed or retried.
type Center struct {
	mu      sync.RWMutex
	entries map[string]*entry
	limit   int
	now     func() time.Time
}

func NewCenter(limit int) *Center {
	if limit <= 0 {
		limit = 100
	}
	return &Center{
		entries: make(map[string]*entry),
		limit:   limit,
		now:     time.Now,
	}
}

func (c *Center) Retrying(label string, attempt, maxAttempts int, delay time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropProgressLocked(label)
	c.addLocked(&entry{Notice: Notice{
		Kind:        KindProgress,
		Label:       label,
		Message:     fmt.Sprintf("%s failed (attempt %d of %d), retrying in %s: %v", label, attempt, maxAttempts, delay, err),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}})
}

func (c *Center) Failed(label string, attempts int, err error, retry func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropProgressLocked(label)
	c.addLocked(&entry{
		Notice: Notice{
			Kind:      KindFailure,
			Label:     label,
			Message:   err.Error(),
			Attempt:   attempts,
			Retryable: retry != nil,
		},
		retry: retry,
	})
}

// Recovered clears the progress notice once the operation went through.
func (c *Center) Recovered(label string, _ int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropProgressLocked(label)
}

// List returns notices newest first.
func (c *Center) List() []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notice, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Notice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (c *Center) Dismiss(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return ErrNotFound
	}
	delete(c.entries, id)
	return nil
}

// Retry removes the failure notice and runs its operation again from scratch.
// A new failure produces a new notice.
func (c *Center) Retry(ctx context.Context, id string) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if e.retry == nil {
		c.mu.Unlock()
		return ErrNotRetryable
	}
	delete(c.entries, id)
	c.mu.Unlock()

	return e.retry(ctx)
}

func (c *Center) dropProgressLocked(label string) {
	for id, e := range c.entries {
		if e.Kind == KindProgress && e.Label == label {
			delete(c.entries, id)
		}
	}
}

func (c *Center) addLocked(e *entry) {
	e.ID = uuid.NewString()
	e.CreatedAt = c.now()
	c.entries[e.ID] = e

	for len(c.entries) > c.limit {
		var oldest *entry
		for _, cand := range c.entries {
			if oldest == nil || cand.CreatedAt.Before(oldest.CreatedAt) {
				oldest = cand
			}
		}
		delete(c.entries, oldest.ID)
	}
}
