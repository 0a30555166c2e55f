package docpipe

import (
	"fmt"
	"os"
)

// extractText reads a plain text file in whatever charset it was saved in.
func extractText(path string) (text, charset string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", ioErr(fmt.Errorf("read text: %w", err))
	}
	return decodeText(data)
}
