package docpipe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// extractCSV decodes the file with the detected charset and re-joins every
// record with commas. Blank lines are skipped by the reader.
func extractCSV(path string) (text, charset string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", ioErr(fmt.Errorf("read csv: %w", err))
	}
	decoded, charset, err := decodeText(data)
	if err != nil {
		return "", "", err
	}

	r := csv.NewReader(strings.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var lines []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("parse csv: %w", err)
		}
		lines = append(lines, strings.Join(rec, ","))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), charset, nil
}
