package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTrailingData reports extra content after the first JSON value.
var ErrTrailingData = errors.New("trailing data after document")

// DecodeDocument reads exactly one JSON value from r. Numbers decode as
// json.Number so ids keep their source literal and serialize back unchanged.
func DecodeDocument(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if dec.More() {
		return nil, ErrTrailingData
	}
	return doc, nil
}
