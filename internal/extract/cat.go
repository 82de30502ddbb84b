package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractWithCat reads OpenDocument text and RTF. DOCX goes through extractDOCX because
// cat only matches bare <w:p> elements.
func extractWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return text, nil
}
