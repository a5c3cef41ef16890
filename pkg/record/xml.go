package record

import (
	"encoding/xml"
	"fmt"
	"io"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

// AnswersNamespace is the XML namespace of a vendor answers export.
const AnswersNamespace = "http://schemas.business-integrity.com/dealbuilder/2006/answers"

type answersSession struct {
	XMLName   xml.Name         `xml:"Session"`
	Xmlns     string           `xml:"xmlns,attr,omitempty"`
	Variables []answerVariable `xml:"Variable"`
}

type answerVariable struct {
	Name          string   `xml:"Name,attr"`
	RepeatContext *string  `xml:"RepeatContext,attr,omitempty"`
	Values        []string `xml:"Value"`
}

type answersDocument struct {
	Variables []answerVariable `xml:"http://schemas.business-integrity.com/dealbuilder/2006/answers Variable"`
}

// FromAnswersXML transcodes a vendor answers export into records. Only direct
// Variable children of the root in the answers namespace are read; Parameter
// elements are ignored.
func FromAnswersXML(r io.Reader) (Records, error) {
	var doc answersDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", cerrors.ErrInvalidRecords, err)
	}

	records := make(Records, 0, len(doc.Variables))
	for _, v := range doc.Variables {
		rec := Record{Name: v.Name, Repetition: v.RepeatContext, Values: v.Values}
		records = append(records, rec)
	}
	return records.Normalize(), nil
}

// ToAnswersXML writes records as a vendor answers export.
func ToAnswersXML(w io.Writer, records Records) error {
	session := answersSession{Xmlns: AnswersNamespace}
	for _, rec := range records {
		session.Variables = append(session.Variables, answerVariable{
			Name:          rec.Name,
			RepeatContext: rec.Repetition,
			Values:        rec.Values,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(session); err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}
	return enc.Flush()
}
