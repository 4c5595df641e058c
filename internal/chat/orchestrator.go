package chat

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"ocrchat/internal/logger"
	"ocrchat/internal/models"
)

var (
	ErrSubmissionInFlight = errors.New("a submission is already in flight")
	ErrEmptyMessage       = errors.New("message text cannot be empty")
	ErrMissingKeys        = errors.New("attachment has no extraction keys")
)

// Extractor is the remote OCR+AI boundary consumed by the orchestrator.
type Extractor interface {
	Extract(ctx context.Context, in models.ExtractionInput, keys []string) (map[string]any, error)
}

// Orchestrator runs the message-submit state machine for one session:
// precondition checks, user-message append, the single remote suspension
// point, and the assistant append with error recovery. The in-flight
// flag gates re-entrancy, so at most one submission runs at a time and
// the cells need no coordination beyond their own locks.
type Orchestrator struct {
	state     *State
	log       *Log
	extractor Extractor
	inFlight  atomic.Bool
}

// SubmitResult reports the messages appended by one submission attempt.
type SubmitResult struct {
	UserMessage      models.Message  `json:"user_message"`
	AssistantMessage *models.Message `json:"assistant_message,omitempty"`
	RemoteFailed     bool            `json:"remote_failed,omitempty"`
}

func NewOrchestrator(state *State, log *Log, extractor Extractor) *Orchestrator {
	return &Orchestrator{state: state, log: log, extractor: extractor}
}

// InFlight reports whether a submission is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// Submit runs one submission attempt. Rejections (empty text, missing
// keys, re-entrancy) return an error without touching the log; once the
// user message is appended the attempt always completes, appending
// exactly one assistant message for attachment exchanges whether the
// remote call succeeds or fails.
func (o *Orchestrator) Submit(ctx context.Context, text string) (*SubmitResult, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer o.inFlight.Store(false)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if o.state.HasAttachment() && !o.state.HasKeys() {
		return nil, ErrMissingKeys
	}

	snap, input, keys, hasAttachment := o.state.Snapshot()
	if !hasAttachment {
		user := o.log.Append(models.Message{Role: models.RoleUser, Text: text})
		o.state.SetDraft("")
		return &SubmitResult{UserMessage: user}, nil
	}

	// The user message lands before the remote call is issued, so the
	// log reads "sent" even when the extraction is slow or fails.
	user := o.log.Append(models.Message{
		Role:       models.RoleUser,
		Text:       text,
		Attachment: &snap,
	})
	o.state.SetDraft("")

	result, err := o.extractor.Extract(ctx, input, keys)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"file":  input.FileName,
			"error": err.Error(),
		}).Error("remote extraction failed")
		// Keep the attachment so the user can retry the same exchange.
		assistant := o.log.Append(models.Message{
			Role: models.RoleAssistant,
			Text: NoticeRemoteFailure,
		})
		return &SubmitResult{
			UserMessage:      user,
			AssistantMessage: &assistant,
			RemoteFailed:     true,
		}, nil
	}

	assistant := o.log.Append(models.Message{
		Role:             models.RoleAssistant,
		Text:             NoticeExtractionLead,
		ExtractionResult: result,
	})
	o.state.Clear()
	return &SubmitResult{UserMessage: user, AssistantMessage: &assistant}, nil
}
