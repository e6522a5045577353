package service

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"

	"github.com/noah-isme/src-permit-api/pkg/config"
	"github.com/noah-isme/src-permit-api/pkg/export"
	"github.com/noah-isme/src-permit-api/pkg/jobs"
	"github.com/noah-isme/src-permit-api/pkg/mailer"
)

const (
	jobTypePermitIssued = "permit.issued"
	qrAttachmentName    = "permit-qr.png"
)

// NotificationService emails students their permit in the background.
type NotificationService struct {
	sender  mailer.Sender
	qr      qrRenderer
	slips   slipRenderer
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
	queue   *jobs.Queue
}

// NewNotificationService wires the mail queue. Start must be called before
// notices are accepted.
func NewNotificationService(sender mailer.Sender, qr qrRenderer, slips slipRenderer, cfg config.NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slips == nil {
		slips = export.NewPDFExporter()
	}
	svc := &NotificationService{
		sender:  sender,
		qr:      qr,
		slips:   slips,
		metrics: metrics,
		logger:  logger,
		enabled: cfg.Enabled && sender != nil,
	}
	svc.queue = jobs.NewQueue("permit-mail", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the mail workers.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop cancels the mail workers and waits for them to exit.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyPermitIssued queues the permit email. Students without an address are
// skipped.
func (s *NotificationService) NotifyPermitIssued(ctx context.Context, notice PermitIssuedNotice) error {
	if !s.enabled {
		return nil
	}
	if notice.Permit.StudentEmail == "" {
		s.logger.Debug("student has no email, skipping permit notification", zap.Int64("permit_id", notice.Permit.ID))
		return nil
	}
	return s.queue.Enqueue(jobs.Job{Type: jobTypePermitIssued, Payload: notice})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(PermitIssuedNotice)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}
	msg, err := s.compose(notice)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.metrics.NotificationSent(false)
		return err
	}
	s.metrics.NotificationSent(true)
	s.logger.Info("permit notification sent", zap.Int64("permit_id", notice.Permit.ID))
	return nil
}

func (s *NotificationService) compose(notice PermitIssuedNotice) (mailer.Message, error) {
	permit := notice.Permit
	png, err := s.qr.PNG(notice.VerificationURL)
	if err != nil {
		return mailer.Message{}, err
	}
	slip, err := renderPermitSlip(s.slips, s.qr, &permit, notice.Code, notice.VerificationURL)
	if err != nil {
		return mailer.Message{}, err
	}

	expires := permit.ExpiryDate.Format("02 Jan 2006")
	text := fmt.Sprintf("Hello %s,\n\nYour SRC permit has been issued.\n\nCode: %s\nExpires: %s\n\nVerify at %s\n",
		permit.StudentName, notice.Code, expires, notice.VerificationURL)
	body := fmt.Sprintf(`<p>Hello %s,</p><p>Your SRC permit has been issued.</p>
<p><strong>Code:</strong> <code>%s</code><br><strong>Expires:</strong> %s</p>
<p><img src="cid:%s" alt="Permit QR code"></p>
<p><a href="%s">Verify this permit</a></p>`,
		html.EscapeString(permit.StudentName), html.EscapeString(notice.Code), expires,
		qrAttachmentName, html.EscapeString(notice.VerificationURL))

	return mailer.Message{
		To:      permit.StudentEmail,
		Subject: "Your SRC permit " + notice.Code,
		Text:    text,
		HTML:    body,
		Attachments: []mailer.Attachment{
			{Filename: qrAttachmentName, ContentType: "image/png", Data: png, Inline: true},
			{Filename: "permit-" + notice.Code + ".pdf", ContentType: "application/pdf", Data: slip},
		},
	}, nil
}
