package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ExtractionKey is a single user-specified field name the remote OCR
// service should try to extract from the attached document.
type ExtractionKey struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Attachment is the immutable snapshot of a pending attachment taken at
// send time. It carries no reference back to the live attachment state.
type Attachment struct {
	FileName   string          `json:"file_name"`
	FileType   string          `json:"file_type"`
	PreviewURL string          `json:"preview_url,omitempty"`
	Keys       []ExtractionKey `json:"keys,omitempty"`
}

// Message is one entry in a session's conversation log.
type Message struct {
	ID               int64          `json:"id"`
	Role             Role           `json:"role"`
	Text             string         `json:"text"`
	Attachment       *Attachment    `json:"attachment,omitempty"`
	ExtractionResult map[string]any `json:"extraction_result,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
