package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ocrchat/internal/models"
)

type mockExtractor struct {
	calls     int
	lastInput models.ExtractionInput
	lastKeys  []string
	result    map[string]any
	err       error
	block     chan struct{}
}

func (m *mockExtractor) Extract(_ context.Context, in models.ExtractionInput, keys []string) (map[string]any, error) {
	m.calls++
	m.lastInput = in
	m.lastKeys = keys
	if m.block != nil {
		<-m.block
	}
	return m.result, m.err
}

func newTestOrchestrator(t *testing.T, mock *mockExtractor) (*Orchestrator, *State, *Log) {
	t.Helper()
	state, _ := newTestState(t)
	log := NewLog()
	return NewOrchestrator(state, log, mock), state, log
}

func TestSubmitPlainMessage(t *testing.T) {
	mock := &mockExtractor{}
	orc, state, log := newTestOrchestrator(t, mock)
	state.SetDraft("hello there")

	result, err := orc.Submit(context.Background(), "hello there")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, result.UserMessage.Role)
	require.Equal(t, "hello there", result.UserMessage.Text)
	require.Nil(t, result.UserMessage.Attachment)
	require.Nil(t, result.AssistantMessage)

	// Plain messages never touch the remote client.
	require.Equal(t, 0, mock.calls)
	require.Equal(t, 1, log.Count())
	require.Equal(t, "", state.Draft())
}

func TestSubmitRejectsBlankText(t *testing.T) {
	mock := &mockExtractor{}
	orc, _, log := newTestOrchestrator(t, mock)

	_, err := orc.Submit(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.True(t, log.IsEmpty())
	require.Equal(t, 0, mock.calls)
	require.False(t, orc.InFlight())
}

func TestSubmitRejectsAttachmentWithoutKeys(t *testing.T) {
	mock := &mockExtractor{}
	orc, state, log := newTestOrchestrator(t, mock)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))

	_, err := orc.Submit(context.Background(), "please extract")
	require.ErrorIs(t, err, ErrMissingKeys)
	require.True(t, log.IsEmpty())
	require.Equal(t, 0, mock.calls)
	// The attachment survives the rejected attempt.
	require.True(t, state.HasAttachment())
}

func TestSubmitWithAttachmentSuccess(t *testing.T) {
	mock := &mockExtractor{result: map[string]any{"Total": "42.00"}}
	orc, state, log := newTestOrchestrator(t, mock)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 2<<20)))
	state.SetKeys([]models.ExtractionKey{{ID: "k1", Key: "Total"}})

	result, err := orc.Submit(context.Background(), "Total please extract")
	require.NoError(t, err)
	require.Equal(t, 1, mock.calls)
	require.Equal(t, []string{"Total"}, mock.lastKeys)
	require.Equal(t, "invoice.png", mock.lastInput.FileName)

	messages := log.All()
	require.Len(t, messages, 2)
	require.Equal(t, models.RoleUser, messages[0].Role)
	require.Equal(t, models.RoleAssistant, messages[1].Role)
	require.NotNil(t, messages[0].Attachment)
	require.Equal(t, "invoice.png", messages[0].Attachment.FileName)
	require.Equal(t, "Total", messages[0].Attachment.Keys[0].Key)
	require.Equal(t, NoticeExtractionLead, messages[1].Text)
	require.Equal(t, "42.00", messages[1].ExtractionResult["Total"])
	require.Equal(t, messages[1].ExtractionResult, result.AssistantMessage.ExtractionResult)

	require.False(t, state.HasAttachment())
	require.False(t, result.RemoteFailed)
}

func TestSubmitWithAttachmentRemoteFailure(t *testing.T) {
	mock := &mockExtractor{err: errors.New("boom")}
	orc, state, log := newTestOrchestrator(t, mock)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))
	state.SetKeys([]models.ExtractionKey{{ID: "k1", Key: "Total"}})

	result, err := orc.Submit(context.Background(), "extract this")
	require.NoError(t, err)
	require.True(t, result.RemoteFailed)

	messages := log.All()
	require.Len(t, messages, 2)
	require.Equal(t, models.RoleUser, messages[0].Role)
	require.Equal(t, models.RoleAssistant, messages[1].Role)
	require.Equal(t, NoticeRemoteFailure, messages[1].Text)
	require.Nil(t, messages[1].ExtractionResult)

	// The attachment stays so the user can retry the same exchange.
	require.True(t, state.HasAttachment())
	require.True(t, state.HasKeys())
}

func TestSubmitGatesReentrancy(t *testing.T) {
	mock := &mockExtractor{
		result: map[string]any{"Total": "42.00"},
		block:  make(chan struct{}),
	}
	orc, state, _ := newTestOrchestrator(t, mock)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))
	state.SetKeys([]models.ExtractionKey{{ID: "k1", Key: "Total"}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := orc.Submit(context.Background(), "first")
		require.NoError(t, err)
	}()

	require.Eventually(t, orc.InFlight, time.Second, time.Millisecond)
	_, err := orc.Submit(context.Background(), "second")
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(mock.block)
	<-done
	require.False(t, orc.InFlight())
}

// TestInvoiceExchange walks the full happy path: select invoice.png,
// confirm the "Total" key via the editor, append user text, submit.
func TestInvoiceExchange(t *testing.T) {
	mock := &mockExtractor{result: map[string]any{"Total": "42.00"}}
	orc, state, log := newTestOrchestrator(t, mock)

	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 2<<20)))
	require.True(t, state.DialogOpen())

	ed := state.OpenKeysEditor()
	require.NoError(t, ed.SetRow(0, "Total"))
	draft, err := ed.Submit()
	require.NoError(t, err)
	require.Equal(t, "Total", draft)

	// User types after the key-derived draft.
	text := draft + " please extract"
	require.True(t, state.CanSend(text))

	result, err := orc.Submit(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, "Total please extract", result.UserMessage.Text)
	require.Equal(t, "invoice.png", result.UserMessage.Attachment.FileName)
	require.Equal(t, []string{"Total"}, mock.lastKeys)
	require.Equal(t, "42.00", result.AssistantMessage.ExtractionResult["Total"])
	require.Equal(t, 2, log.Count())
	require.False(t, state.HasAttachment())
}
