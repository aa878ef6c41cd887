package store

import (
	"context"
	"log"
	"sync"
	"time"

	"classlink/internal/common"
)

// HistoryStore keeps the trailing notification history per user: at most
// maxEntries entries, none older than maxAge. It is the source of truth for
// the frequency filter and the stats endpoint. Entries are written through
// to the repository when one is configured.
type HistoryStore struct {
	mu         sync.RWMutex
	entries    map[string][]common.HistoryEntry
	maxEntries int
	maxAge     time.Duration

	repo common.HistoryRepository

	done chan struct{}
	once sync.Once
}

func NewHistoryStore(maxEntries int, maxAge, sweepInterval time.Duration, repo common.HistoryRepository) *HistoryStore {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	s := &HistoryStore{
		entries:    make(map[string][]common.HistoryEntry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		repo:       repo,
		done:       make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweeper(sweepInterval)
	}
	return s
}

// Append records one terminal delivery outcome. The per-user list is pruned
// to the most recent maxEntries on every insert.
func (s *HistoryStore) Append(ctx context.Context, userID string, entry common.HistoryEntry) {
	s.mu.Lock()
	list := append(s.entries[userID], entry)
	if over := len(list) - s.maxEntries; over > 0 {
		list = append([]common.HistoryEntry(nil), list[over:]...)
	}
	s.entries[userID] = list
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Append(ctx, userID, entry); err != nil {
			log.Printf("history write-through failed for %s: %v", userID, err)
		}
	}
}

// Recent returns up to limit entries for the user, most recent last.
func (s *HistoryStore) Recent(userID string, limit int) []common.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[userID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]common.HistoryEntry, len(list))
	copy(out, list)
	return out
}

// CountSince counts entries of the same (type, subject) newer than since.
func (s *HistoryStore) CountSince(userID string, t common.NotificationType, subject string, since time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries[userID] {
		if e.Type == t && e.Subject == subject && e.Timestamp.After(since) {
			count++
		}
	}
	return count
}

// Stats summarizes the user's history for the stats endpoint.
func (s *HistoryStore) Stats(userID string) common.NotificationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats common.NotificationStats
	dayAgo := time.Now().Add(-24 * time.Hour)
	for _, e := range s.entries[userID] {
		stats.Total++
		if e.Timestamp.After(dayAgo) {
			stats.Last24h++
		}
		if e.Delivered {
			stats.Delivered++
		}
	}
	if stats.Total > 0 {
		stats.DeliveryRate = float64(stats.Delivered) / float64(stats.Total)
	}
	return stats
}

// Close stops the background sweeper.
func (s *HistoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *HistoryStore) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.sweep(now)
		case <-s.done:
			return
		}
	}
}

// sweep drops entries older than maxAge. Entries are appended in time order,
// so a single cut point per user suffices.
func (s *HistoryStore) sweep(now time.Time) {
	cutoff := now.Add(-s.maxAge)

	s.mu.Lock()
	for userID, list := range s.entries {
		idx := 0
		for idx < len(list) && list[idx].Timestamp.Before(cutoff) {
			idx++
		}
		if idx == 0 {
			continue
		}
		if idx == len(list) {
			delete(s.entries, userID)
			continue
		}
		s.entries[userID] = append([]common.HistoryEntry(nil), list[idx:]...)
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteOlderThan(context.Background(), cutoff); err != nil {
			log.Printf("history sweep (durable) failed: %v", err)
		}
	}
}
