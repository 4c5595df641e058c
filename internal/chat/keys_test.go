package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ocrchat/internal/models"
)

func TestEditorSeedsOneBlankRow(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))

	ed := state.OpenKeysEditor()
	rows := ed.Rows()
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].ID)
	require.Empty(t, rows[0].Key)
}

func TestEditorSeedsExistingKeys(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))
	state.SetKeys([]models.ExtractionKey{{ID: "a", Key: "Total"}, {ID: "b", Key: "Date"}})

	ed := state.OpenKeysEditor()
	rows := ed.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "Total", rows[0].Key)
	require.Equal(t, "Date", rows[1].Key)
}

func TestEditorRemoveKeepsMinimumOneRow(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))

	ed := state.OpenKeysEditor()
	require.ErrorIs(t, ed.RemoveRow(0), ErrLastRow)

	ed.AddRow()
	require.Equal(t, 2, ed.Len())
	require.NoError(t, ed.RemoveRow(1))
	require.Equal(t, 1, ed.Len())
	require.ErrorIs(t, ed.RemoveRow(0), ErrLastRow)
	require.ErrorIs(t, ed.RemoveRow(5), ErrRowNotFound)
}

func TestEditorSubmitRejectsBlankRow(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))

	// Last remaining row left blank: confirm must fail and SetKeys must
	// never run.
	ed := state.OpenKeysEditor()
	require.NoError(t, ed.SetRow(0, "   "))
	_, err := ed.Submit()
	require.ErrorIs(t, err, ErrInvalidKeys)
	require.False(t, state.HasKeys())
	require.True(t, state.DialogOpen())
}

func TestEditorSubmitBindsKeysAndSeedsDraft(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))

	ed := state.OpenKeysEditor()
	require.NoError(t, ed.SetRow(0, "  Total "))
	draft, err := ed.Submit()
	require.NoError(t, err)
	require.Equal(t, "Total", draft)
	require.Equal(t, "Total", state.Draft())
	require.True(t, state.HasKeys())
	require.False(t, state.DialogOpen())
}

func TestEditorSubmitAppendsToExistingDraft(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))
	state.SetDraft("hello")

	ed := state.OpenKeysEditor()
	require.NoError(t, ed.SetRow(0, "Total"))
	ed.AddRow()
	require.NoError(t, ed.SetRow(1, "Date"))

	draft, err := ed.Submit()
	require.NoError(t, err)
	require.Equal(t, "hello, Total, Date", draft)

	att, _ := state.Attachment()
	require.Len(t, att.Keys, 2)
	require.Equal(t, "Total", att.Keys[0].Key)
	require.Equal(t, "Date", att.Keys[1].Key)
}

func TestEditorCancelLeavesStateUntouched(t *testing.T) {
	state, _ := newTestState(t)
	require.NoError(t, state.SelectFile(imageCandidate(t, "invoice.png", 1<<20)))
	state.SetKeys([]models.ExtractionKey{{ID: "a", Key: "Total"}})
	state.SetDraft("draft text")

	ed := state.OpenKeysEditor()
	require.NoError(t, ed.SetRow(0, "Overwritten"))
	ed.Cancel()

	att, _ := state.Attachment()
	require.Equal(t, "Total", att.Keys[0].Key)
	require.Equal(t, "draft text", state.Draft())
	require.False(t, state.DialogOpen())
}
