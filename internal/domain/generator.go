package domain

import "context"

// Attachment carries resolved attachment bytes into a generation request.
type Attachment struct {
	Ref  string
	MIME string
	Data []byte
}

// GenerationRequest is the assembled input for one generation call:
// ordered textual context segments plus resolved attachment bytes.
// It is immutable once built.
type GenerationRequest struct {
	Segments    []string
	Attachments []Attachment
}

// ContentGenerator is the opaque generation backend: takes an assembled
// request, returns text or fails.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Model() string
}
