package service

import (
	"sync"
	"time"

	"github.com/set-night/trackerbot/internal/domain"
)

type cachedIssue struct {
	issue    domain.Issue
	cachedAt time.Time
}

// IssueCache keeps recently fetched issue records so repeated webhooks for
// the same issue do not hit the tracker each time.
type IssueCache struct {
	mu      sync.RWMutex
	entries map[string]cachedIssue
	ttl     time.Duration
	now     func() time.Time
}

func NewIssueCache(ttl time.Duration) *IssueCache {
	return &IssueCache{
		entries: make(map[string]cachedIssue),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *IssueCache) Get(key string) (*domain.Issue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.cachedAt) > c.ttl {
		return nil, false
	}
	is := e.issue
	return &is, true
}

func (c *IssueCache) Set(issue *domain.Issue) {
	if issue == nil || issue.Key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[issue.Key] = cachedIssue{issue: *issue, cachedAt: c.now()}
}

// Prune drops expired entries.
func (c *IssueCache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *IssueCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
