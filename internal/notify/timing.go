package notify

import (
	"time"

	"classlink/internal/common"
)

// Decision reasons surfaced on delivery analytics.
const (
	ReasonImmediate  = "immediate_delivery"
	ReasonQuietHours = "quiet_hours"
	ReasonEngagement = "engagement_optimization"
)

const (
	lowEngagement  = 0.3
	highEngagement = 0.6
)

// Decision is the timing optimizer's verdict for one candidate.
type Decision struct {
	SendNow     bool
	ScheduledAt time.Time
	Reason      string
}

// TimingOptimizer decides immediate versus scheduled delivery from quiet
// hours and the engagement predictor. Urgent notifications are never
// deferred.
type TimingOptimizer struct {
	predictor common.EngagementPredictor
}

func NewTimingOptimizer(predictor common.EngagementPredictor) *TimingOptimizer {
	if predictor == nil {
		predictor = HourlyEngagement{}
	}
	return &TimingOptimizer{predictor: predictor}
}

func (o *TimingOptimizer) Decide(n *common.SmartNotification, prefs common.UserPreferences, now time.Time) Decision {
	if n.Request.Priority == common.PriorityUrgent {
		return Decision{SendNow: true, Reason: ReasonImmediate}
	}

	if prefs.QuietHours.Contains(now) {
		return Decision{
			ScheduledAt: prefs.QuietHours.NextEnd(now),
			Reason:      ReasonQuietHours,
		}
	}

	if prefs.AdaptiveTiming && o.predictor.Predict(now) < lowEngagement {
		return Decision{
			ScheduledAt: o.nextEngagedSlot(now),
			Reason:      ReasonEngagement,
		}
	}

	return Decision{SendNow: true, Reason: ReasonImmediate}
}

// nextEngagedSlot walks forward hour by hour to the next slot the predictor
// rates as high engagement, falling back to one hour out. Slots land on the
// local wall-clock hour, which Truncate cannot give in zones with fractional
// UTC offsets.
func (o *TimingOptimizer) nextEngagedSlot(now time.Time) time.Time {
	for h := 1; h <= 24; h++ {
		step := now.Add(time.Duration(h) * time.Hour)
		candidate := time.Date(step.Year(), step.Month(), step.Day(), step.Hour(), 0, 0, 0, step.Location())
		if o.predictor.Predict(candidate) >= highEngagement {
			return candidate
		}
	}
	return now.Add(time.Hour)
}

// HourlyEngagement is the default deterministic predictor: a fixed
// hour-of-day curve peaking before school, at lunch, and in the evening.
type HourlyEngagement struct{}

var hourlyEngagementCurve = [24]float64{
	0.05, 0.05, 0.05, 0.05, 0.05, 0.10, // 00-05
	0.35, 0.65, 0.80, 0.70, 0.50, 0.45, // 06-11
	0.65, 0.60, 0.40, 0.45, 0.55, 0.70, // 12-17
	0.75, 0.80, 0.75, 0.50, 0.25, 0.10, // 18-23
}

func (HourlyEngagement) Predict(now time.Time) float64 {
	return hourlyEngagementCurve[now.Hour()]
}
