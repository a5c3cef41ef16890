package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

func TestParseRepetition(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "[1]", want: 1},
		{in: "[12]", want: 12},
		{in: " [3] ", want: 3},
		{in: "3", wantErr: true},
		{in: "[]", wantErr: true},
		{in: "[x]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepetition(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, cerrors.ErrInvalidRepetition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_ValueCollapse(t *testing.T) {
	assert.Nil(t, New("Empty").Value())
	assert.Equal(t, "a", New("One", "a").Value())
	assert.Equal(t, []interface{}{"a", "b"}, New("Many", "a", "b").Value())
}

func TestRecord_RepetitionIndex(t *testing.T) {
	n, ok, err := New("Stockholder_S1", "Bob").RepetitionIndex()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)

	n, ok, err = NewRepeated("Stockholder", 2, "Janice").RepetitionIndex()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestFromJSON(t *testing.T) {
	input := `[
		{"name": "CompanyName", "repetition": null, "values": ["Acme, Inc."]},
		{"name": "Stockholder", "repetition": "[2]", "values": ["Janice L"]},
		{"name": "StockholderInfoSame", "repetition": null}
	]`

	records, err := FromJSON(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "CompanyName", records[0].Name)
	assert.Nil(t, records[0].Repetition)
	require.NotNil(t, records[1].Repetition)
	assert.Equal(t, "[2]", *records[1].Repetition)
	assert.Equal(t, []string{}, records[2].Values)
}

func TestFromJSON_RejectsNamelessRecords(t *testing.T) {
	_, err := FromJSON(strings.NewReader(`[{"values": ["x"]}]`))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)

	_, err = FromJSON(strings.NewReader(`{"not": "a list"}`))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)
}

func TestFromEnvelope(t *testing.T) {
	envelope := []byte(`{
		"id": 1771616,
		"title": "Formation Questionnaire",
		"datasheetItems": [
			{"name": "NumberStockholders", "repetition": null, "values": ["2"]},
			{"name": "Stockholder_S1", "repetition": null, "values": ["Bob Smith"]},
			{"name": "Stockholder", "repetition": "[2]", "values": ["Janice L"]},
			{"name": "Shares", "repetition": "[2]", "values": [1000, true]}
		]
	}`)

	records, err := FromEnvelope(envelope)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"NumberStockholders", "Stockholder_S1", "Stockholder", "Shares"}, records.Names())
	assert.Equal(t, []string{"1000", "true"}, records[3].Values)
	assert.Equal(t, "[2]", *records[2].Repetition)
}

func TestFromEnvelope_Errors(t *testing.T) {
	_, err := FromEnvelope([]byte(`{"datasheetItems": `))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)

	_, err = FromEnvelope([]byte(`{"other": []}`))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)

	_, err = FromEnvelope([]byte(`{"datasheetItems": {"name": "x"}}`))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)

	_, err = FromEnvelope([]byte(`{"datasheetItems": [{"values": []}]}`))
	assert.ErrorIs(t, err, cerrors.ErrInvalidRecords)
}

func TestFromAnswersXML(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<Session xmlns="http://schemas.business-integrity.com/dealbuilder/2006/answers">
  <Parameter Name="db_profile"><Value>GD Default</Value></Parameter>
  <Variable Name="CompanyName"><Value>darkpillar.ai, Inc.</Value></Variable>
  <Variable Name="Stockholder" RepeatContext="[2]"><Value>Janice L</Value></Variable>
  <Variable Name="StockholderInfoSame"><Value>Paid With</Value><Value>Vesting Schedule</Value></Variable>
  <Variable Name="Unanswered" Known="false"/>
</Session>`

	records, err := FromAnswersXML(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "CompanyName", records[0].Name)
	assert.Nil(t, records[0].Repetition)
	assert.Equal(t, []string{"darkpillar.ai, Inc."}, records[0].Values)
	assert.Equal(t, "[2]", *records[1].Repetition)
	assert.Equal(t, []string{"Paid With", "Vesting Schedule"}, records[2].Values)
	assert.Equal(t, []string{}, records[3].Values)
}

func TestAnswersXML_RoundTrip(t *testing.T) {
	records := Records{
		New("CompanyName", "Acme"),
		NewRepeated("Stockholder", 2, "Janice L"),
		New("StockholderInfoSame", "Paid With", "VCD"),
	}

	var buf bytes.Buffer
	require.NoError(t, ToAnswersXML(&buf, records))
	assert.Contains(t, buf.String(), `xmlns="`+AnswersNamespace+`"`)

	decoded, err := FromAnswersXML(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}
