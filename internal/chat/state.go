package chat

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"ocrchat/internal/logger"
	"ocrchat/internal/models"
	"ocrchat/internal/preview"
	"ocrchat/internal/validation"
)

// User-facing notice texts surfaced by the UI layer.
const (
	NoticeUnsupportedType = "Please upload only images (JPEG, PNG, GIF, WebP) or PDF files."
	NoticeFileTooLarge    = "File size must be less than 10MB."
	NoticeMissingKeys     = "Please add OCR keys for the attachment"
	NoticeEmptyMessage    = "Message cannot be empty"
	NoticeRemoteFailure   = "Sorry, there was an error processing your request. Please try again."
	NoticeExtractionLead  = "Here are the extracted fields from your document:"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
)

// FileCandidate describes an uploaded file already saved under the
// session's upload directory, before it is accepted as the pending
// attachment.
type FileCandidate struct {
	FileName   string
	MediaType  string
	Size       int64
	StoredPath string
}

// PendingAttachment is the single in-flight upload candidate. At most
// one exists per session at a time.
type PendingAttachment struct {
	FileName   string
	MediaType  string
	Size       int64
	StoredPath string
	Preview    *preview.Handle
	Keys       []models.ExtractionKey
}

// State holds a session's mutable cells: the pending attachment, the
// draft message text, and the keys-dialog flag. Each cell has a narrow
// mutation contract; the orchestrator coordinates them with explicit
// reads and writes rather than through shared subscriptions.
type State struct {
	mu         sync.Mutex
	sessionID  string
	previews   *preview.Registry
	attachment *PendingAttachment
	snapshots  []*preview.Handle
	draft      string
	dialogOpen bool
}

func NewState(sessionID string, previews *preview.Registry) *State {
	return &State{sessionID: sessionID, previews: previews}
}

// SelectFile validates the candidate and, on success, installs it as the
// pending attachment, replacing and releasing any superseded one. Image
// kinds get a preview resource; keys start empty; the keys dialog opens.
// On rejection the state is left untouched.
func (s *State) SelectFile(candidate FileCandidate) error {
	if !validation.IsAcceptedType(candidate.MediaType) {
		return ErrUnsupportedType
	}
	if !validation.IsWithinSizeLimit(candidate.Size) {
		return ErrFileTooLarge
	}

	var handle *preview.Handle
	if validation.IsImageKind(candidate.MediaType) {
		var err error
		handle, err = s.previews.Acquire(s.sessionID, candidate.StoredPath, candidate.MediaType)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	old := s.attachment
	s.attachment = &PendingAttachment{
		FileName:   candidate.FileName,
		MediaType:  candidate.MediaType,
		Size:       candidate.Size,
		StoredPath: candidate.StoredPath,
		Preview:    handle,
	}
	s.dialogOpen = true
	s.mu.Unlock()

	releaseAttachment(old)
	return nil
}

// SetKeys replaces the pending attachment's key list. Silent no-op when
// nothing is pending.
func (s *State) SetKeys(keys []models.ExtractionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return
	}
	s.attachment.Keys = append([]models.ExtractionKey(nil), keys...)
}

// Clear removes the pending attachment, releasing its resources.
// Idempotent.
func (s *State) Clear() {
	s.mu.Lock()
	old := s.attachment
	s.attachment = nil
	s.mu.Unlock()

	releaseAttachment(old)
}

func (s *State) HasAttachment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment != nil
}

// HasKeys reports whether a pending attachment exists and carries at
// least one extraction key.
func (s *State) HasKeys() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment != nil && len(s.attachment.Keys) > 0
}

// CanSend reports whether a message with the given text may be
// submitted: non-blank text, and any pending attachment must have keys.
func (s *State) CanSend(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment == nil || len(s.attachment.Keys) > 0
}

// Attachment returns a copy of the pending attachment for display.
func (s *State) Attachment() (PendingAttachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return PendingAttachment{}, false
	}
	att := *s.attachment
	att.Keys = append([]models.ExtractionKey(nil), s.attachment.Keys...)
	return att, true
}

func (s *State) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *State) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

func (s *State) DialogOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialogOpen
}

func (s *State) CloseDialog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogOpen = false
}

// Snapshot freezes the pending attachment into an immutable message
// attachment and returns the extraction input alongside the flat key
// list. The snapshot retains its own preview reference, so the preview
// stays renderable after the live attachment is cleared; the session
// releases these retained references when it closes.
func (s *State) Snapshot() (models.Attachment, models.ExtractionInput, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return models.Attachment{}, models.ExtractionInput{}, nil, false
	}

	att := s.attachment
	snap := models.Attachment{
		FileName: att.FileName,
		FileType: att.MediaType,
		Keys:     append([]models.ExtractionKey(nil), att.Keys...),
	}
	if att.Preview != nil {
		retained := att.Preview.Retain()
		s.snapshots = append(s.snapshots, retained)
		snap.PreviewURL = retained.URL()
	}

	keys := make([]string, 0, len(att.Keys))
	for _, k := range att.Keys {
		keys = append(keys, k.Key)
	}

	input := models.ExtractionInput{
		FileName:   att.FileName,
		MediaType:  att.MediaType,
		StoredPath: att.StoredPath,
	}
	return snap, input, keys, true
}

// Shutdown releases everything the state still owns: the pending
// attachment and every preview reference retained by sent-message
// snapshots. Called when the session closes.
func (s *State) Shutdown() {
	s.mu.Lock()
	old := s.attachment
	s.attachment = nil
	snapshots := s.snapshots
	s.snapshots = nil
	s.mu.Unlock()

	releaseAttachment(old)
	for _, h := range snapshots {
		h.Release()
	}
	s.previews.ReleaseSession(s.sessionID)
}

// releaseAttachment frees a superseded or cleared attachment. Image
// files are owned by their preview resource; files without a preview
// (PDFs) are removed directly.
func releaseAttachment(att *PendingAttachment) {
	if att == nil {
		return
	}
	if att.Preview != nil {
		att.Preview.Release()
		return
	}
	if att.StoredPath != "" {
		if err := os.Remove(att.StoredPath); err != nil && !os.IsNotExist(err) {
			logger.WithFields(logrus.Fields{
				"path":  att.StoredPath,
				"error": err.Error(),
			}).Warn("remove stored attachment failed")
		}
	}
}
