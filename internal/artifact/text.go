package artifact

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Text is a decoded text artifact.
type Text struct {
	// Body is the full decoded text.
	Body string

	// Header is the first line with trailing whitespace removed. For
	// replacement sources it is free-form provenance an operator wrote.
	Header string
}

// DecodeText converts raw file bytes to UTF-8. Editors on the host platform
// often save UTF-16 with a byte-order mark or UTF-8 with a BOM; both are
// honoured and the BOM is dropped. Input without a BOM is taken as UTF-8.
func DecodeText(raw []byte) (Text, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return Text{}, fmt.Errorf("decode text: %w", err)
	}
	body := string(out)
	return Text{Body: body, Header: FirstLine(body)}, nil
}

// FirstLine returns the first line of s without its line terminator.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimRight(line, "\r \t")
}
