package files

import (
	"bytes"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// validatePDF rejects payloads the remote service would fail on much later,
// after an upload and a polling cycle have already been spent.
func validatePDF(data []byte) error {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	if doc.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
