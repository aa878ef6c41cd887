package notify

import (
	"context"
	"fmt"
	"time"

	"classlink/internal/common"
)

// Typed producers for the triggers the host application raises most often.
// Each one builds a well-formed request and hands it to the pipeline; other
// subsystems (the insight generator included) go through these instead of
// assembling requests themselves.

func (s *Service) SendAssignmentDueReminder(ctx context.Context, userID, subject, assignment string, due time.Time) (*common.NotificationRecord, error) {
	return s.CreateNotification(ctx, common.NotificationRequest{
		UserID:      userID,
		Title:       "Assignment due soon",
		Message:     fmt.Sprintf("%q for %s is due %s", assignment, subject, due.Format("Mon Jan 2 15:04")),
		Type:        common.AssignmentDueType,
		Priority:    common.PriorityHigh,
		Subject:     subject,
		TargetRoles: []string{"student"},
		Metadata: common.NotificationMetadata{
			"assignment": assignment,
			"due_at":     due.Format(time.RFC3339),
		},
	})
}

func (s *Service) SendGradePosted(ctx context.Context, userID, subject, assessment string) (*common.NotificationRecord, error) {
	return s.CreateNotification(ctx, common.NotificationRequest{
		UserID:      userID,
		Title:       "New grade posted",
		Message:     fmt.Sprintf("Your grade for %q in %s is available", assessment, subject),
		Type:        common.GradePostedType,
		Priority:    common.PriorityMedium,
		Subject:     subject,
		TargetRoles: []string{"student", "parent"},
	})
}

func (s *Service) SendClassReminder(ctx context.Context, userID, subject, room string, startsAt time.Time) (*common.NotificationRecord, error) {
	return s.CreateNotification(ctx, common.NotificationRequest{
		UserID:      userID,
		Title:       "Class starting soon",
		Message:     fmt.Sprintf("%s starts at %s in %s", subject, startsAt.Format("15:04"), room),
		Type:        common.ClassReminderType,
		Priority:    common.PriorityHigh,
		Subject:     subject,
		TargetRoles: []string{"student", "teacher"},
	})
}

func (s *Service) SendMaintenanceNotice(ctx context.Context, userID, detail string) (*common.NotificationRecord, error) {
	return s.CreateNotification(ctx, common.NotificationRequest{
		UserID:      userID,
		Title:       "Scheduled maintenance",
		Message:     detail,
		Type:        common.SystemMaintenanceType,
		Priority:    common.PriorityUrgent,
		TargetRoles: []string{"student", "teacher", "parent", "admin"},
	})
}

// SendInsight is the entry point the AI insight generator pushes through;
// insights ride the same filter/timing/dispatch pipeline as everything else.
func (s *Service) SendInsight(ctx context.Context, userID, subject, insight, actionURL string) (*common.NotificationRecord, error) {
	return s.CreateNotification(ctx, common.NotificationRequest{
		UserID:      userID,
		Title:       "Learning insight",
		Message:     insight,
		Type:        common.AIInsightType,
		Priority:    common.PriorityLow,
		Subject:     subject,
		TargetRoles: []string{"student", "parent"},
		ActionURL:   actionURL,
	})
}
