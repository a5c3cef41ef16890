package vesting

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
)

//go:embed defaults/*.json
var defaultFiles embed.FS

// Default definition file names, relative to a definitions directory.
const (
	CiCEventFile      = "cic_event_definition.json"
	SingleTriggerFile = "single_trigger_acceleration.json"
	DoubleTriggerFile = "double_trigger_acceleration.json"
)

// EventDefinition describes the amount an event-based condition vests.
type EventDefinition struct {
	Description        string `json:"description"`
	Remainder          bool   `json:"remainder"`
	PortionNumerator   int    `json:"portion_numerator"`
	PortionDenominator int    `json:"portion_denominator"`
}

func (d EventDefinition) amount() Amount {
	return Fraction(d.PortionNumerator, d.PortionDenominator, d.Remainder)
}

// ExpirationDefinition describes how long double trigger acceleration lasts
// after a change in control.
type ExpirationDefinition struct {
	TimeUnits            PeriodType `json:"time_units"`
	TimeUnitQuantity     int        `json:"time_unit_quantity"`
	TimePeriodRepetition int        `json:"time_period_repetition"`
	Remainder            bool       `json:"remainder"`
	PortionNumerator     int        `json:"portion_numerator"`
	PortionDenominator   int        `json:"portion_denominator"`
}

// TerminationDefinition describes double trigger acceleration. A nil
// expiration means the acceleration never lapses.
type TerminationDefinition struct {
	Expiration  *ExpirationDefinition `json:"time_based_expiration_details"`
	Termination EventDefinition       `json:"termination_event_details"`
}

// Definitions holds the plain-language descriptions and portions used for
// acceleration conditions.
type Definitions struct {
	CiC           EventDefinition
	SingleTrigger map[SingleTrigger]*EventDefinition
	DoubleTrigger map[DoubleTrigger]*TerminationDefinition
}

// DefaultDefinitions returns the embedded definition tables.
func DefaultDefinitions() (*Definitions, error) {
	sub, err := fs.Sub(defaultFiles, "defaults")
	if err != nil {
		return nil, err
	}
	return LoadDefinitions(sub)
}

// LoadDefinitionsDir reads the definition tables from a directory.
func LoadDefinitionsDir(dir string) (*Definitions, error) {
	return LoadDefinitions(os.DirFS(dir))
}

// LoadDefinitions reads the three definition files from fsys.
func LoadDefinitions(fsys fs.FS) (*Definitions, error) {
	var defs Definitions
	if err := readJSON(fsys, CiCEventFile, &defs.CiC); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, SingleTriggerFile, &defs.SingleTrigger); err != nil {
		return nil, err
	}
	if err := readJSON(fsys, DoubleTriggerFile, &defs.DoubleTrigger); err != nil {
		return nil, err
	}
	return &defs, nil
}

func readJSON(fsys fs.FS, name string, v interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("failed to read vesting definitions %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse vesting definitions %s: %w", name, err)
	}
	return nil
}
