package processor

import (
	"encoding/json"
	"fmt"
	"os"

	"refinery/internal/pipeline"
)

// LoadInput reads the scraped artifact file: a JSON array of objects. When
// samples is positive the slice is truncated to that many records, which
// keeps trial runs cheap against large scrapes.
func LoadInput(path string, samples int) ([]pipeline.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	var records []pipeline.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse input file %s: %w", path, err)
	}
	if samples > 0 && samples < len(records) {
		records = records[:samples]
	}
	return records, nil
}
