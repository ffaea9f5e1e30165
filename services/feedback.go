package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"covid-news/auditlog"
	"covid-news/notify"
)

// MaxFeedbackLength is the longest accepted feedback message, in characters.
const MaxFeedbackLength = 1000

// ErrInvalidFeedback is returned for empty or too long feedback.
var ErrInvalidFeedback = errors.New("feedback must be between 1 and 1000 characters")

// FeedbackService forwards user feedback to chat and keeps a local copy.
type FeedbackService struct {
	sender notify.Sender
	audit  *auditlog.Log
	logger *zap.Logger
	now    func() time.Time
}

func NewFeedbackService(sender notify.Sender, audit *auditlog.Log, logger *zap.Logger) *FeedbackService {
	if sender == nil {
		sender = notify.Noop{}
	}
	return &FeedbackService{sender: sender, audit: audit, logger: logger, now: time.Now}
}

// Submit validates content, posts it and appends it to the feedback log. A failed post is
// logged only; the log entry is still written.
func (f *FeedbackService) Submit(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" || utf8.RuneCountInString(content) > MaxFeedbackLength {
		return ErrInvalidFeedback
	}
	if err := f.sender.Send(ctx, content); err != nil {
		f.logger.Warn("Feedback konnte nicht gesendet werden", zap.Error(err))
	}
	if err := f.audit.AppendFeedback(content, f.now()); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}
