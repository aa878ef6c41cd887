// Package store owns per-user notification preferences and the bounded
// delivery history the filter pipeline reads from.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"classlink/internal/cache"
	"classlink/internal/common"
)

const prefCacheTTL = 5 * time.Minute

// PreferenceStore serves effective preferences for a user: cached copy if
// fresh, durable copy from the repository otherwise, process-wide default
// when the user never saved any. Updates merge a patch and write through.
type PreferenceStore struct {
	repo  common.PreferenceRepository
	cache cache.Cache
}

func NewPreferenceStore(repo common.PreferenceRepository, c cache.Cache) *PreferenceStore {
	return &PreferenceStore{repo: repo, cache: c}
}

func prefKey(userID string) string { return "prefs:" + userID }

// Get returns the user's effective preferences, falling back to defaults.
func (s *PreferenceStore) Get(ctx context.Context, userID string) common.UserPreferences {
	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, prefKey(userID)); err == nil && ok {
			var prefs common.UserPreferences
			if err := json.Unmarshal([]byte(raw), &prefs); err == nil {
				return prefs
			}
		}
	}

	if s.repo != nil {
		prefs, err := s.repo.Get(ctx, userID)
		if err != nil {
			log.Printf("preference lookup failed for %s, using defaults: %v", userID, err)
		} else if prefs != nil {
			s.fillCache(ctx, userID, *prefs)
			return *prefs
		}
	}

	return common.DefaultPreferences()
}

// Update merges patch onto the user's current preferences and writes the
// result through to the repository. Applying the same patch twice yields
// identical effective preferences.
func (s *PreferenceStore) Update(ctx context.Context, userID string, patch common.PreferencePatch) error {
	merged := patch.Apply(s.Get(ctx, userID))

	if s.repo != nil {
		if err := s.repo.Upsert(ctx, userID, merged); err != nil {
			return fmt.Errorf("failed to persist preferences for %s: %w", userID, err)
		}
	}

	s.fillCache(ctx, userID, merged)
	return nil
}

func (s *PreferenceStore) fillCache(ctx context.Context, userID string, prefs common.UserPreferences) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(prefs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, prefKey(userID), string(raw), prefCacheTTL); err != nil {
		log.Printf("preference cache write failed for %s: %v", userID, err)
	}
}
