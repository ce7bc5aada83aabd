package domain

import "time"

type ParseStatus string

const (
	ParsePending ParseStatus = "pending"
	ParseReady   ParseStatus = "ready"
	ParseFailed  ParseStatus = "failed"
	// ParseSkipped is terminal: the declared content type is never sent to
	// the parser (raster images and similar), raw bytes stay retrievable.
	ParseSkipped ParseStatus = "skipped"
)

func (s ParseStatus) Terminal() bool {
	return s == ParseReady || s == ParseFailed || s == ParseSkipped
}

// ContentRecord is the single stored representation of one unique byte
// sequence. Exactly one record exists per digest; attachments in any number
// of containers reference it.
type ContentRecord struct {
	Digest      string      `json:"digest"`
	BlobKey     string      `json:"blob_key"`
	MimeType    string      `json:"mime_type"`
	ByteSize    int64       `json:"byte_size"`
	ParsedText  *string     `json:"parsed_text,omitempty"`
	ParseStatus ParseStatus `json:"parse_status"`
	ParseError  string      `json:"parse_error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TruncateParsedText caps extracted text at max runes measured in bytes of
// the UTF-8 encoding, cutting at a rune boundary. Oversize parser output is
// stored truncated, never rejected.
func TruncateParsedText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
