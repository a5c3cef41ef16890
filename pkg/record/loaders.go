package record

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

// DefaultEnvelopePath is where a vendor contract envelope keeps its answers.
const DefaultEnvelopePath = "datasheetItems"

// FromJSON reads the flat record list format.
func FromJSON(r io.Reader) (Records, error) {
	var records Records
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", cerrors.ErrInvalidRecords, err)
	}
	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("%w: record %d has no name", cerrors.ErrInvalidRecords, i)
		}
	}
	return records.Normalize(), nil
}

// FromEnvelope reads records from the datasheetItems array of a contract envelope.
func FromEnvelope(data []byte) (Records, error) {
	return FromEnvelopePath(data, DefaultEnvelopePath)
}

// FromEnvelopePath reads records from the array found at a gjson path.
func FromEnvelopePath(data []byte, path string) (Records, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: envelope is not valid JSON", cerrors.ErrInvalidRecords)
	}

	items := gjson.GetBytes(data, path)
	if !items.Exists() {
		return nil, fmt.Errorf("%w: envelope has no %q", cerrors.ErrInvalidRecords, path)
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: %q is not an array", cerrors.ErrInvalidRecords, path)
	}

	var (
		records Records
		itemErr error
	)
	items.ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name")
		if name.Type != gjson.String || name.String() == "" {
			itemErr = fmt.Errorf("%w: item %d has no name", cerrors.ErrInvalidRecords, len(records))
			return false
		}

		rec := Record{Name: name.String(), Values: []string{}}
		if rep := item.Get("repetition"); rep.Type == gjson.String {
			s := rep.String()
			rec.Repetition = &s
		}
		item.Get("values").ForEach(func(_, v gjson.Result) bool {
			rec.Values = append(rec.Values, v.String())
			return true
		})

		records = append(records, rec)
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}

	return records, nil
}

// WriteJSON writes records in the flat list format.
func WriteJSON(w io.Writer, records Records) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records.Normalize())
}
