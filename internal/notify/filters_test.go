package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"classlink/internal/common"
)

func candidate(typ common.NotificationType, priority common.Priority, subject string) *common.SmartNotification {
	return &common.SmartNotification{
		ID: "n-1",
		Request: common.NotificationRequest{
			UserID:   "student-1",
			Title:    "Test",
			Message:  "Test content",
			Type:     typ,
			Priority: priority,
			Subject:  subject,
		},
		Context: common.ContextFor(typ),
		Status:  common.StatusPending,
	}
}

func schoolHours() time.Time {
	return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
}

func lateNight() time.Time {
	return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
}

func TestRelevanceFilter_SubjectAndRoleBoost(t *testing.T) {
	n := candidate(common.AssignmentDueType, common.PriorityMedium, "math")
	n.Request.TargetRoles = []string{"student"}
	uc := common.UserContext{Role: "student", Subjects: []string{"math", "physics"}}

	admitted := relevanceFilter{}.Admit(n, uc, nil, common.DefaultPreferences(), schoolHours())

	assert.True(t, admitted)
	// base 0.5 + subject 0.3 + role 0.2 + academic hours 0.1, capped at 1.0
	assert.Equal(t, 1.0, n.RelevanceScore)
}

func TestRelevanceFilter_NoContextMatch(t *testing.T) {
	n := candidate(common.AssignmentDueType, common.PriorityMedium, "chemistry")
	uc := common.UserContext{Role: "parent", Subjects: []string{"math"}}

	admitted := relevanceFilter{}.Admit(n, uc, nil, common.DefaultPreferences(), lateNight())

	assert.False(t, admitted)
	assert.Equal(t, 0.5, n.RelevanceScore)
}

func TestRelevanceFilter_CriticalAlwaysTimely(t *testing.T) {
	n := candidate(common.SystemMaintenanceType, common.PriorityUrgent, "")
	n.Request.TargetRoles = []string{"student"}
	uc := common.UserContext{Role: "student"}

	admitted := relevanceFilter{}.Admit(n, uc, nil, common.DefaultPreferences(), lateNight())

	assert.True(t, admitted)
	assert.InDelta(t, 0.8, n.RelevanceScore, 1e-9)
}

func TestFrequencyFilter_SuppressesFourthOfSameKind(t *testing.T) {
	now := schoolHours()
	n := candidate(common.AssignmentDueType, common.PriorityMedium, "math")

	history := []common.HistoryEntry{
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-1 * time.Hour)},
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-2 * time.Hour)},
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-3 * time.Hour)},
	}

	assert.False(t, frequencyFilter{}.Admit(n, common.UserContext{}, history, common.DefaultPreferences(), now))
}

func TestFrequencyFilter_IgnoresOtherSubjectsAndOldEntries(t *testing.T) {
	now := schoolHours()
	n := candidate(common.AssignmentDueType, common.PriorityMedium, "math")

	history := []common.HistoryEntry{
		{Type: common.AssignmentDueType, Subject: "physics", Timestamp: now.Add(-1 * time.Hour)},
		{Type: common.GradePostedType, Subject: "math", Timestamp: now.Add(-2 * time.Hour)},
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-25 * time.Hour)},
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-1 * time.Hour)},
		{Type: common.AssignmentDueType, Subject: "math", Timestamp: now.Add(-2 * time.Hour)},
	}

	assert.True(t, frequencyFilter{}.Admit(n, common.UserContext{}, history, common.DefaultPreferences(), now))
}

func TestTimingFilter_QuietHours(t *testing.T) {
	prefs := common.DefaultPreferences() // quiet 22:00-07:00, adaptive timing on

	tests := []struct {
		name     string
		priority common.Priority
		adaptive bool
		now      time.Time
		admitted bool
	}{
		{"outside window", common.PriorityMedium, true, schoolHours(), true},
		{"urgent inside window", common.PriorityUrgent, true, lateNight(), true},
		{"adaptive defers inside window", common.PriorityMedium, true, lateNight(), true},
		{"non-adaptive dropped inside window", common.PriorityMedium, false, lateNight(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prefs
			p.AdaptiveTiming = tt.adaptive
			n := candidate(common.AssignmentDueType, tt.priority, "math")
			assert.Equal(t, tt.admitted, timingFilter{}.Admit(n, common.UserContext{}, nil, p, tt.now))
		})
	}
}

func TestPriorityFilter_Threshold(t *testing.T) {
	prefs := common.DefaultPreferences()
	prefs.PriorityThreshold = common.PriorityHigh

	low := candidate(common.AssignmentDueType, common.PriorityMedium, "math")
	high := candidate(common.AssignmentDueType, common.PriorityHigh, "math")
	urgent := candidate(common.AssignmentDueType, common.PriorityUrgent, "math")

	assert.False(t, priorityFilter{}.Admit(low, common.UserContext{}, nil, prefs, schoolHours()))
	assert.True(t, priorityFilter{}.Admit(high, common.UserContext{}, nil, prefs, schoolHours()))
	assert.True(t, priorityFilter{}.Admit(urgent, common.UserContext{}, nil, prefs, schoolHours()))
}

func TestFilterPipeline_ShortCircuitRecordsFilterName(t *testing.T) {
	pipeline := NewFilterPipeline()
	prefs := common.DefaultPreferences()
	prefs.PriorityThreshold = common.PriorityUrgent

	// passes relevance (subject match) but fails the priority threshold
	n := candidate(common.AssignmentDueType, common.PriorityHigh, "math")
	uc := common.UserContext{Role: "student", Subjects: []string{"math"}}

	admitted, filteredBy := pipeline.Admit(n, uc, nil, prefs, schoolHours())

	assert.False(t, admitted)
	assert.Equal(t, "priority", filteredBy)
}

func TestFilterPipeline_AdmitsCleanCandidate(t *testing.T) {
	pipeline := NewFilterPipeline()
	n := candidate(common.AssignmentDueType, common.PriorityMedium, "math")
	uc := common.UserContext{Subjects: []string{"math"}}

	admitted, filteredBy := pipeline.Admit(n, uc, nil, common.DefaultPreferences(), schoolHours())

	assert.True(t, admitted)
	assert.Empty(t, filteredBy)
}
