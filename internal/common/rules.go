package common

import "time"

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ContextualRule is static per-type configuration consulted by the timing
// optimizer and the dispatcher. TimingOffsets are the lead times at which a
// reminder-style notification is considered timely.
type ContextualRule struct {
	Urgency        Urgency
	TimingOffsets  []time.Duration
	Escalation     bool
	GroupBySubject bool
}

var contextualRules = map[NotificationType]ContextualRule{
	AssignmentDueType: {
		Urgency:        UrgencyHigh,
		TimingOffsets:  []time.Duration{24 * time.Hour, 6 * time.Hour, time.Hour},
		Escalation:     true,
		GroupBySubject: true,
	},
	GradePostedType: {
		Urgency:        UrgencyNormal,
		GroupBySubject: true,
	},
	ClassReminderType: {
		Urgency:       UrgencyHigh,
		TimingOffsets: []time.Duration{30 * time.Minute, 10 * time.Minute},
	},
	SystemMaintenanceType: {
		Urgency:    UrgencyCritical,
		Escalation: true,
	},
	AIInsightType: {
		Urgency:        UrgencyLow,
		GroupBySubject: true,
	},
	MessageType: {
		Urgency: UrgencyNormal,
	},
	AnnouncementType: {
		Urgency: UrgencyNormal,
	},
}

// RuleFor returns the contextual rule for t, defaulting to normal urgency
// for unknown types.
func RuleFor(t NotificationType) ContextualRule {
	if rule, ok := contextualRules[t]; ok {
		return rule
	}
	return ContextualRule{Urgency: UrgencyNormal}
}
