package collector

import (
	"bytes"
	"encoding/json"
	"fmt"

	"pubdigest/internal/domain"
)

// Parse decodes scraper output into records. Anything before the first '['
// and after the last ']' is ignored, so stray log lines printed by a
// scraper do not break decoding.
func Parse(output []byte) ([]domain.RawRecord, error) {
	start := bytes.IndexByte(output, '[')
	end := bytes.LastIndexByte(output, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in output", domain.ErrIngestionParse)
	}

	var decoded []*domain.RawRecord
	if err := json.Unmarshal(output[start:end+1], &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIngestionParse, err)
	}

	records := make([]domain.RawRecord, 0, len(decoded))
	for i, rec := range decoded {
		if rec == nil {
			return nil, fmt.Errorf("%w: record %d: not an object", domain.ErrIngestionParse, i)
		}
		records = append(records, *rec)
	}

	return records, nil
}
