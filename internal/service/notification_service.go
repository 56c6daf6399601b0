package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fgc-kenya/admissions-api/internal/models"
	"github.com/fgc-kenya/admissions-api/pkg/jobs"
	"github.com/fgc-kenya/admissions-api/pkg/mailer"
)

const (
	jobTypeOTP             = "otp_email"
	jobTypeDecision        = "decision_email"
	jobTypeSubmissionAlert = "submission_alert_email"
)

// NotificationService composes and dispatches outbound email through a
// background queue. Dispatch is fire-and-forget: enqueue failures are
// logged, never propagated, so a mail outage cannot roll back a status
// change that already committed.
type NotificationService struct {
	mail            mailer.Mailer
	queue           *jobs.Queue
	admissionsInbox string
	metrics         *MetricsService
	logger          *zap.Logger
}

// NewNotificationService wires the mailer behind a worker queue.
// admissionsInbox receives the new-submission alerts; an empty value
// disables them.
func NewNotificationService(mail mailer.Mailer, admissionsInbox string, queueCfg jobs.QueueConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{mail: mail, admissionsInbox: admissionsInbox, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("mail", svc.deliver, queueCfg)
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) deliver(_ context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		s.logger.Error("mail job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.mail.Send(msg); err != nil {
		s.metrics.ObserveMailDispatch(false)
		return err
	}
	s.metrics.ObserveMailDispatch(true)
	return nil
}

func (s *NotificationService) enqueue(jobType string, msg mailer.Message) {
	err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: msg})
	if err != nil {
		s.logger.Warn("failed to enqueue mail", zap.String("type", jobType), zap.Error(err))
	}
}

// SendOTP emails a one-time passcode. The plaintext code exists only in
// this message and is never logged.
func (s *NotificationService) SendOTP(email, code string, purpose models.OTPPurpose, ttlMinutes int) {
	var subject, intro string
	switch purpose {
	case models.OTPPurposeVerifyEmail:
		subject = "Verify your email address"
		intro = "Use this code to verify your email address."
	case models.OTPPurposeRecovery:
		subject = "Account recovery code"
		intro = "Use this code to recover access to your account."
	default:
		subject = "Your login code"
		intro = "Use this code to sign in."
	}

	text := fmt.Sprintf("%s\n\nCode: %s\n\nThe code expires in %d minutes. If you did not request it, ignore this email.", intro, code, ttlMinutes)
	html := fmt.Sprintf("<p>%s</p><p style=\"font-size:24px;letter-spacing:4px\"><strong>%s</strong></p><p>The code expires in %d minutes. If you did not request it, ignore this email.</p>", intro, code, ttlMinutes)

	s.enqueue(jobTypeOTP, mailer.Message{To: email, Subject: subject, TextBody: text, HTMLBody: html})
}

var decisionSubjects = map[models.ApplicationStatus]string{
	models.StatusSubmitted:          "Application received",
	models.StatusUnderReview:        "Your application is under review",
	models.StatusShortlisted:        "You have been shortlisted",
	models.StatusInterviewScheduled: "Interview scheduled",
	models.StatusInterviewed:        "Interview complete",
	models.StatusAccepted:           "Congratulations - you have been accepted",
	models.StatusRejected:           "Application decision",
	models.StatusWaitlisted:         "You have been waitlisted",
	models.StatusWithdrawn:          "Application withdrawn",
}

// SendDecision emails the applicant a summary of a status change.
func (s *NotificationService) SendDecision(email string, newStatus models.ApplicationStatus) {
	subject, ok := decisionSubjects[newStatus]
	if !ok {
		subject = "Application update"
	}

	text := fmt.Sprintf("Your application status is now %s.\n\nSign in to your dashboard for details.", newStatus)
	html := fmt.Sprintf("<p>Your application status is now <strong>%s</strong>.</p><p>Sign in to your dashboard for details.</p>", newStatus)

	s.enqueue(jobTypeDecision, mailer.Message{To: email, Subject: subject, TextBody: text, HTMLBody: html})
}

// SendSubmissionAlert tells the admissions inbox a new application
// just landed, so reviewers do not have to poll the dashboard.
func (s *NotificationService) SendSubmissionAlert(applicantEmail, applicationID string) {
	if s.admissionsInbox == "" {
		return
	}

	subject := "New application submitted"
	text := fmt.Sprintf("Application %s was submitted by %s.\n\nOpen the review dashboard to triage it.", applicationID, applicantEmail)
	html := fmt.Sprintf("<p>Application <strong>%s</strong> was submitted by %s.</p><p>Open the review dashboard to triage it.</p>", applicationID, applicantEmail)

	s.enqueue(jobTypeSubmissionAlert, mailer.Message{To: s.admissionsInbox, Subject: subject, TextBody: text, HTMLBody: html})
}
