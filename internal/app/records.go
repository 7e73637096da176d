package app

import (
	"encoding/json"
	"fmt"
	"io"

	"pisos/internal/domain"
)

// DecodeRecords reads scraper output: a JSON array of records, a single
// record, or an object wrapping the array under "listings".
func DecodeRecords(r io.Reader) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: body must be JSON: %v", domain.ErrInvalidListing, err)
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: expected an array or object of listings", domain.ErrInvalidListing)
	}
	wrapped, ok := obj["listings"].([]any)
	if !ok {
		return []map[string]any{obj}, nil
	}
	records = make([]map[string]any, 0, len(wrapped))
	for i, v := range wrapped {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: listings[%d] is not an object", domain.ErrInvalidListing, i)
		}
		records = append(records, m)
	}
	return records, nil
}
