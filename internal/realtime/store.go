package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/pulse-analytics/pulse/internal/core/partition"
)

const defaultShards = 16

// Session is the live state of one visit.
type Session struct {
	SessionID    string    `json:"sessionId"`
	SiteID       string    `json:"siteId"`
	Start        time.Time `json:"start"`
	LastActivity time.Time `json:"lastActivity"`
	PageCount    int       `json:"pageCount"`
	LandingPath  string    `json:"landingPath"`
	CurrentPath  string    `json:"currentPath"`
	Country      string    `json:"country,omitempty"`
	Device       string    `json:"device,omitempty"`
}

// SessionStore holds live sessions. Implementations must be safe for
// concurrent use.
type SessionStore interface {
	// Update applies fn to the session, creating it first when create is true.
	// It reports whether a session was updated.
	Update(siteID, sessionID string, create bool, fn func(s *Session)) bool

	// Active returns copies of a site's sessions with activity after cutoff.
	Active(siteID string, cutoff time.Time) []Session

	// Expire removes every session whose last activity is at or before cutoff
	// and returns how many were removed.
	Expire(cutoff time.Time) int

	// Len returns the number of sessions held.
	Len() int
}

// ShardedStore spreads sites over independently locked shards so that
// writers for different sites rarely contend.
type ShardedStore struct {
	shards []*shard
}

type shard struct {
	mu    sync.RWMutex
	sites map[string]map[string]*Session
}

// NewShardedStore creates a store with n shards. n <= 0 uses a default.
func NewShardedStore(n int) *ShardedStore {
	if n <= 0 {
		n = defaultShards
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{sites: make(map[string]map[string]*Session)}
	}
	return &ShardedStore{shards: shards}
}

func (s *ShardedStore) shardFor(siteID string) *shard {
	return s.shards[partition.Shard(siteID, len(s.shards))]
}

func (s *ShardedStore) Update(siteID, sessionID string, create bool, fn func(*Session)) bool {
	sh := s.shardFor(siteID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sessions := sh.sites[siteID]
	sess, ok := sessions[sessionID]
	if !ok {
		if !create {
			return false
		}
		if sessions == nil {
			sessions = make(map[string]*Session)
			sh.sites[siteID] = sessions
		}
		sess = &Session{SessionID: sessionID, SiteID: siteID}
		sessions[sessionID] = sess
	}
	fn(sess)
	return true
}

func (s *ShardedStore) Active(siteID string, cutoff time.Time) []Session {
	sh := s.shardFor(siteID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	active := make([]Session, 0, len(sh.sites[siteID]))
	for _, sess := range sh.sites[siteID] {
		if sess.LastActivity.After(cutoff) {
			active = append(active, *sess)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].LastActivity.Equal(active[j].LastActivity) {
			return active[i].SessionID < active[j].SessionID
		}
		return active[i].LastActivity.After(active[j].LastActivity)
	})
	return active
}

func (s *ShardedStore) Expire(cutoff time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for siteID, sessions := range sh.sites {
			for id, sess := range sessions {
				if !sess.LastActivity.After(cutoff) {
					delete(sessions, id)
					removed++
				}
			}
			if len(sessions) == 0 {
				delete(sh.sites, siteID)
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, sessions := range sh.sites {
			n += len(sessions)
		}
		sh.mu.RUnlock()
	}
	return n
}
