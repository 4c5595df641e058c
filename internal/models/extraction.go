package models

// ExtractionInput describes the stored upload handed to the remote
// extraction client.
type ExtractionInput struct {
	FileName   string
	MediaType  string
	StoredPath string
}
