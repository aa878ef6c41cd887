// Package notify implements the smart notification pipeline: contextual
// filtering, timing optimization, and multi-channel dispatch with retry.
package notify

import (
	"time"

	"classlink/internal/common"
)

// Filter is one predicate a candidate notification must pass. Filters are
// independently testable and run in a fixed order; the pipeline
// short-circuits on the first rejection.
type Filter interface {
	Name() string
	Admit(n *common.SmartNotification, uc common.UserContext, history []common.HistoryEntry, prefs common.UserPreferences, now time.Time) bool
}

// FilterPipeline is the ordered chain: relevance, frequency, timing,
// priority.
type FilterPipeline struct {
	filters []Filter
}

func NewFilterPipeline() *FilterPipeline {
	return &FilterPipeline{
		filters: []Filter{
			relevanceFilter{},
			frequencyFilter{},
			timingFilter{},
			priorityFilter{},
		},
	}
}

// Admit runs the chain and returns whether the candidate passed, and if not,
// the name of the filter that rejected it.
func (p *FilterPipeline) Admit(n *common.SmartNotification, uc common.UserContext, history []common.HistoryEntry, prefs common.UserPreferences, now time.Time) (bool, string) {
	for _, f := range p.filters {
		if !f.Admit(n, uc, history, prefs, now) {
			return false, f.Name()
		}
	}
	return true, ""
}

const (
	relevanceThreshold = 0.6
	frequencyWindow    = 24 * time.Hour
	frequencyLimit     = 3
)

// relevanceFilter scores the candidate against the user's current context
// and admits it above the relevance threshold. The score is kept on the
// notification for analytics.
type relevanceFilter struct{}

func (relevanceFilter) Name() string { return "relevance" }

func (relevanceFilter) Admit(n *common.SmartNotification, uc common.UserContext, _ []common.HistoryEntry, _ common.UserPreferences, now time.Time) bool {
	score := 0.5
	if n.Request.Subject != "" && containsString(uc.Subjects, n.Request.Subject) {
		score += 0.3
	}
	if uc.Role != "" && containsString(n.Request.TargetRoles, uc.Role) {
		score += 0.2
	}
	if contextuallyTimely(n, now) {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	n.RelevanceScore = score
	return score > relevanceThreshold
}

// contextuallyTimely reports whether delivering now fits the notification's
// contextual rule: critical types are always timely, academic ones during
// school hours.
func contextuallyTimely(n *common.SmartNotification, now time.Time) bool {
	rule := common.RuleFor(n.Request.Type)
	if rule.Urgency == common.UrgencyCritical {
		return true
	}
	if n.Context == common.ContextAcademic {
		h := now.Hour()
		return h >= 8 && h < 18
	}
	return false
}

// frequencyFilter suppresses the fourth and later notification of the same
// (type, subject) within the trailing 24 hours.
type frequencyFilter struct{}

func (frequencyFilter) Name() string { return "frequency" }

func (frequencyFilter) Admit(n *common.SmartNotification, _ common.UserContext, history []common.HistoryEntry, _ common.UserPreferences, now time.Time) bool {
	since := now.Add(-frequencyWindow)
	count := 0
	for _, e := range history {
		if e.Type == n.Request.Type && e.Subject == n.Request.Subject && e.Timestamp.After(since) {
			count++
		}
	}
	return count < frequencyLimit
}

// timingFilter handles the user's quiet hours. Urgent traffic always passes.
// Non-urgent traffic inside the window passes only when adaptive timing is
// on, in which case the timing optimizer defers it to the end of the window
// instead of this filter dropping it.
type timingFilter struct{}

func (timingFilter) Name() string { return "timing" }

func (timingFilter) Admit(n *common.SmartNotification, _ common.UserContext, _ []common.HistoryEntry, prefs common.UserPreferences, now time.Time) bool {
	if !prefs.QuietHours.Contains(now) {
		return true
	}
	if n.Request.Priority == common.PriorityUrgent {
		return true
	}
	return prefs.AdaptiveTiming
}

// priorityFilter enforces the user's priority threshold.
type priorityFilter struct{}

func (priorityFilter) Name() string { return "priority" }

func (priorityFilter) Admit(n *common.SmartNotification, _ common.UserContext, _ []common.HistoryEntry, prefs common.UserPreferences, _ time.Time) bool {
	return n.Request.Priority.Rank() >= prefs.PriorityThreshold.Rank()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
