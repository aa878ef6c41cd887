package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type NotificationType string

const (
	AssignmentDueType     NotificationType = "assignment_due"
	GradePostedType       NotificationType = "grade_posted"
	ClassReminderType     NotificationType = "class_reminder"
	SystemMaintenanceType NotificationType = "system_maintenance"
	AIInsightType         NotificationType = "ai_insight"
	MessageType           NotificationType = "message"
	AnnouncementType      NotificationType = "announcement"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank maps a priority onto the ordinal scale low < medium < high < urgent.
// Unknown values rank below low so a malformed priority never outranks a
// user's threshold.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusFiltered  Status = "filtered"
	StatusScheduled Status = "scheduled"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a notification in this status is done moving
// through the pipeline.
func (s Status) Terminal() bool {
	return s == StatusFiltered || s == StatusDelivered || s == StatusFailed
}

type Channel string

const (
	ChannelPush     Channel = "push"
	ChannelInApp    Channel = "in_app"
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelRealtime Channel = "realtime"
)

// Per-channel content limits. Content longer than the limit is truncated
// with an ellipsis before the adapter sends it.
const (
	MaxPushContentLength  = 150
	MaxInAppContentLength = 300
	MaxEmailContentLength = 1000
	MaxSMSContentLength   = 160
)

type NotificationMetadata map[string]interface{}

func (m NotificationMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *NotificationMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into NotificationMetadata", value)
	}
	return json.Unmarshal(b, m)
}

// NotificationRequest is what a trigger hands to the pipeline. It is
// immutable once submitted; everything mutable lives on SmartNotification.
type NotificationRequest struct {
	UserID      string               `json:"user_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Type        NotificationType     `json:"type"`
	Priority    Priority             `json:"priority"`
	Subject     string               `json:"subject"`
	TargetRoles []string             `json:"target_roles"`
	ActionURL   string               `json:"action_url,omitempty"`
	Metadata    NotificationMetadata `json:"metadata,omitempty"`
}

type NotificationContext string

const (
	ContextAcademic    NotificationContext = "academic"
	ContextUrgent      NotificationContext = "urgent"
	ContextInteractive NotificationContext = "interactive"
	ContextPersonal    NotificationContext = "personal"
)

// ContextFor derives the delivery context from the notification type.
func ContextFor(t NotificationType) NotificationContext {
	switch t {
	case SystemMaintenanceType:
		return ContextUrgent
	case MessageType:
		return ContextInteractive
	case AIInsightType:
		return ContextPersonal
	default:
		return ContextAcademic
	}
}

type DeliveryResult struct {
	Channel Channel   `json:"channel"`
	Success bool      `json:"success"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

type DeliveryResults []DeliveryResult

func (r DeliveryResults) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

func (r *DeliveryResults) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into DeliveryResults", value)
	}
	return json.Unmarshal(b, r)
}

type Analytics struct {
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
	ClickedAt   *time.Time `json:"clicked_at,omitempty"`
}

// SmartNotification wraps a request while the pipeline owns it. Once Status
// turns terminal it is folded into history and persisted; nothing mutates it
// afterwards.
type SmartNotification struct {
	ID             string
	Request        NotificationRequest
	Context        NotificationContext
	UserSegment    string
	RelevanceScore float64
	Status         Status
	FilteredBy     string
	Attempts       int
	MaxAttempts    int
	ScheduledAt    *time.Time
	Results        DeliveryResults
	Analytics      Analytics
}

// NotificationRecord is the caller-facing snapshot returned by
// CreateNotification and the HTTP surface.
type NotificationRecord struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	Title       string              `json:"title"`
	Message     string              `json:"message"`
	Type        NotificationType    `json:"type"`
	Priority    Priority            `json:"priority"`
	Subject     string              `json:"subject,omitempty"`
	ActionURL   string              `json:"action_url,omitempty"`
	Status      Status              `json:"status"`
	FilteredBy  string              `json:"filtered_by,omitempty"`
	ScheduledAt *time.Time          `json:"scheduled_at,omitempty"`
	Results     DeliveryResults     `json:"results,omitempty"`
	Context     NotificationContext `json:"context"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Record snapshots the current pipeline state for a caller.
func (n *SmartNotification) Record() *NotificationRecord {
	results := make(DeliveryResults, len(n.Results))
	copy(results, n.Results)
	return &NotificationRecord{
		ID:          n.ID,
		UserID:      n.Request.UserID,
		Title:       n.Request.Title,
		Message:     n.Request.Message,
		Type:        n.Request.Type,
		Priority:    n.Request.Priority,
		Subject:     n.Request.Subject,
		ActionURL:   n.Request.ActionURL,
		Status:      n.Status,
		FilteredBy:  n.FilteredBy,
		ScheduledAt: n.ScheduledAt,
		Results:     results,
		Context:     n.Context,
		CreatedAt:   n.Analytics.CreatedAt,
	}
}

// QuietHours is a per-user window ("HH:MM", 24h clock) that may wrap past
// midnight, e.g. 22:00-07:00.
type QuietHours struct {
	Start string `json:"start" bson:"start"`
	End   string `json:"end" bson:"end"`
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the window. A window with equal or
// unparsable bounds never matches.
func (q QuietHours) Contains(t time.Time) bool {
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil || start == end {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start < end {
		return now >= start && now < end
	}
	// wraps midnight
	return now >= start || now < end
}

// NextEnd returns the first instant at or after t when the window closes.
func (q QuietHours) NextEnd(t time.Time) time.Time {
	end, err := ParseClock(q.End)
	if err != nil {
		return t
	}
	candidate := time.Date(t.Year(), t.Month(), t.Day(), end/60, end%60, 0, 0, t.Location())
	if !candidate.After(t) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate
}

type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyBatched   Frequency = "batched"
	FrequencyDigest    Frequency = "digest"
)

type UserPreferences struct {
	PriorityThreshold Priority   `json:"priority_threshold" bson:"priority_threshold"`
	Channels          []Channel  `json:"channels" bson:"channels"`
	QuietHours        QuietHours `json:"quiet_hours" bson:"quiet_hours"`
	SubjectFilters    []string   `json:"subject_filters" bson:"subject_filters"`
	Frequency         Frequency  `json:"frequency" bson:"frequency"`
	SmartGrouping     bool       `json:"smart_grouping" bson:"smart_grouping"`
	AdaptiveTiming    bool       `json:"adaptive_timing" bson:"adaptive_timing"`
}

// DefaultPreferences is the process-wide fallback applied to users who have
// never saved preferences.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		PriorityThreshold: PriorityLow,
		Channels:          []Channel{ChannelPush, ChannelInApp, ChannelRealtime},
		QuietHours:        QuietHours{Start: "22:00", End: "07:00"},
		Frequency:         FrequencyImmediate,
		SmartGrouping:     true,
		AdaptiveTiming:    true,
	}
}

// ChannelEnabled reports whether the user opted into ch.
func (p UserPreferences) ChannelEnabled(ch Channel) bool {
	for _, c := range p.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// PreferencePatch is a partial preference update; nil fields are left
// untouched, so applying the same patch twice is a no-op.
type PreferencePatch struct {
	PriorityThreshold *Priority   `json:"priority_threshold,omitempty"`
	Channels          *[]Channel  `json:"channels,omitempty"`
	QuietHours        *QuietHours `json:"quiet_hours,omitempty"`
	SubjectFilters    *[]string   `json:"subject_filters,omitempty"`
	Frequency         *Frequency  `json:"frequency,omitempty"`
	SmartGrouping     *bool       `json:"smart_grouping,omitempty"`
	AdaptiveTiming    *bool       `json:"adaptive_timing,omitempty"`
}

// Apply merges the patch onto prefs and returns the result.
func (patch PreferencePatch) Apply(prefs UserPreferences) UserPreferences {
	if patch.PriorityThreshold != nil {
		prefs.PriorityThreshold = *patch.PriorityThreshold
	}
	if patch.Channels != nil {
		prefs.Channels = append([]Channel(nil), (*patch.Channels)...)
	}
	if patch.QuietHours != nil {
		prefs.QuietHours = *patch.QuietHours
	}
	if patch.SubjectFilters != nil {
		prefs.SubjectFilters = append([]string(nil), (*patch.SubjectFilters)...)
	}
	if patch.Frequency != nil {
		prefs.Frequency = *patch.Frequency
	}
	if patch.SmartGrouping != nil {
		prefs.SmartGrouping = *patch.SmartGrouping
	}
	if patch.AdaptiveTiming != nil {
		prefs.AdaptiveTiming = *patch.AdaptiveTiming
	}
	return prefs
}

type HistoryEntry struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Subject   string           `json:"subject"`
	Timestamp time.Time        `json:"timestamp"`
	Delivered bool             `json:"delivered"`
}

type NotificationStats struct {
	Total        int     `json:"total"`
	Last24h      int     `json:"last_24h"`
	Delivered    int     `json:"delivered"`
	DeliveryRate float64 `json:"delivery_rate"`
}

// UserContext is what the host application knows about the user at the time
// a notification is raised; the relevance filter scores against it.
type UserContext struct {
	Role     string   `json:"role"`
	Subjects []string `json:"subjects"`
}

type Device struct {
	Token    string
	UserID   string
	Platform string
}
