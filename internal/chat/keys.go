package chat

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ocrchat/internal/models"
)

var (
	ErrLastRow     = errors.New("at least one key row must remain")
	ErrRowNotFound = errors.New("key row index out of range")
	ErrInvalidKeys = errors.New("at least one non-empty key is required")
)

var validate = validator.New()

type keyRowForm struct {
	ID  string `validate:"required"`
	Key string `validate:"required"`
}

type keysForm struct {
	Keys []keyRowForm `validate:"required,min=1,dive"`
}

// KeysEditor collects the ordered key rows for the pending attachment.
// It mirrors the modal dialog contract: seeded from the attachment's
// existing keys (or one blank row), always keeps at least one row, and
// only a fully non-blank row set is submittable.
type KeysEditor struct {
	state *State
	rows  []models.ExtractionKey
}

// OpenKeysEditor starts an editing pass over the current attachment's
// keys. Edits are local until Submit.
func (s *State) OpenKeysEditor() *KeysEditor {
	ed := &KeysEditor{state: s}
	if att, ok := s.Attachment(); ok && len(att.Keys) > 0 {
		ed.rows = append(ed.rows, att.Keys...)
	} else {
		ed.rows = []models.ExtractionKey{{ID: uuid.NewString()}}
	}
	return ed
}

func (e *KeysEditor) Rows() []models.ExtractionKey {
	return append([]models.ExtractionKey(nil), e.rows...)
}

func (e *KeysEditor) Len() int {
	return len(e.rows)
}

// AddRow appends a blank row with a fresh id.
func (e *KeysEditor) AddRow() {
	e.rows = append(e.rows, models.ExtractionKey{ID: uuid.NewString()})
}

// RemoveRow deletes the row at index. The last remaining row cannot be
// removed; the minimum is always one editable row.
func (e *KeysEditor) RemoveRow(index int) error {
	if index < 0 || index >= len(e.rows) {
		return ErrRowNotFound
	}
	if len(e.rows) == 1 {
		return ErrLastRow
	}
	e.rows = append(e.rows[:index], e.rows[index+1:]...)
	return nil
}

// SetRow replaces the key text of the row at index.
func (e *KeysEditor) SetRow(index int, key string) error {
	if index < 0 || index >= len(e.rows) {
		return ErrRowNotFound
	}
	e.rows[index].Key = key
	return nil
}

// Submit validates the rows, binds them to the pending attachment, and
// appends the comma-joined key labels to the draft message text once
// (after existing draft text, separated by ", "). Returns the updated
// draft. The draft/keys synchronization is deliberately one-directional:
// nothing ever derives keys back out of the draft.
func (e *KeysEditor) Submit() (string, error) {
	form := keysForm{}
	labels := make([]string, 0, len(e.rows))
	for i := range e.rows {
		e.rows[i].Key = strings.TrimSpace(e.rows[i].Key)
		form.Keys = append(form.Keys, keyRowForm{ID: e.rows[i].ID, Key: e.rows[i].Key})
		labels = append(labels, e.rows[i].Key)
	}
	if err := validate.Struct(form); err != nil {
		return "", ErrInvalidKeys
	}

	e.state.SetKeys(e.rows)

	keysText := strings.Join(labels, ", ")
	draft := e.state.Draft()
	if draft != "" {
		draft = draft + ", " + keysText
	} else {
		draft = keysText
	}
	e.state.SetDraft(draft)
	e.state.CloseDialog()
	return draft, nil
}

// Cancel discards the edits and closes the dialog; attachment state is
// left untouched.
func (e *KeysEditor) Cancel() {
	e.rows = nil
	e.state.CloseDialog()
}
