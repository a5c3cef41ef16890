package ocf

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	cerrors "github.com/wehubfusion/ce2ocf/pkg/errors"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaBase is the $id prefix of the embedded schemas.
const SchemaBase = "https://schema.opencaptablecoalition.com/v/" + Version + "/"

var fileSchemas = map[FileType]string{
	FileManifest:     "files/OCFManifestFile.schema.json",
	FileStakeholders: "files/StakeholdersFile.schema.json",
	FileStockClasses: "files/StockClassesFile.schema.json",
	FileStockLegends: "files/StockLegendTemplatesFile.schema.json",
	FileStockPlans:   "files/StockPlansFile.schema.json",
	FileTransactions: "files/TransactionsFile.schema.json",
	FileValuations:   "files/ValuationsFile.schema.json",
	FileVestingTerms: "files/VestingTermsFile.schema.json",
}

// Validator checks OCF files against the embedded JSON Schemas. It is safe
// for concurrent use.
type Validator struct {
	mu       sync.Mutex
	compiler *jsonschema.Compiler
	schemas  map[FileType]*jsonschema.Schema
}

// NewValidator loads the embedded schemas.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		var doc struct {
			ID string `json:"$id"`
		}
		if err := json.Unmarshal(b, &doc); err != nil || doc.ID == "" {
			return nil, fmt.Errorf("schema %s has no $id", e.Name())
		}
		if err := compiler.AddResource(doc.ID, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", e.Name(), err)
		}
	}

	return &Validator{compiler: compiler, schemas: make(map[FileType]*jsonschema.Schema)}, nil
}

func (v *Validator) schema(ft FileType) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[ft]; ok {
		return s, nil
	}
	name, ok := fileSchemas[ft]
	if !ok {
		return nil, cerrors.ValidationFailed("unknown file_type %q", ft)
	}
	s, err := v.compiler.Compile(SchemaBase + name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", ft, err)
	}
	v.schemas[ft] = s
	return s, nil
}

// ValidationResult lists the problems found in one file.
type ValidationResult struct {
	FileType FileType
	Errors   []string
}

// Valid reports whether no problems were found.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Validate checks one OCF file, picking the schema by its file_type. Schema
// violations are reported in the result; malformed input is an error.
func (v *Validator) Validate(contents []byte) (ValidationResult, error) {
	var data interface{}
	if err := json.Unmarshal(contents, &data); err != nil {
		return ValidationResult{}, cerrors.ValidationFailed("input is not valid JSON")
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		return ValidationResult{}, cerrors.ValidationFailed("input is not a JSON object")
	}
	ft, _ := obj["file_type"].(string)
	if ft == "" {
		return ValidationResult{}, cerrors.ValidationFailed("input has no file_type")
	}

	schema, err := v.schema(FileType(ft))
	if err != nil {
		return ValidationResult{FileType: FileType(ft)}, err
	}

	result := ValidationResult{FileType: FileType(ft)}
	if err := schema.Validate(data); err != nil {
		result.Errors = extractValidationErrors(err)
	}
	return result, nil
}

// ValidatePackage validates every file of p and returns an error wrapping
// ErrValidationFailed when any of them has problems.
func (v *Validator) ValidatePackage(p *Packaged) (map[FileType]ValidationResult, error) {
	results := make(map[FileType]ValidationResult, len(p.Files))
	var failed []string
	for ft, f := range p.Files {
		r, err := v.Validate(f.Contents)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.FileName, err)
		}
		results[ft] = r
		if !r.Valid() {
			failed = append(failed, f.FileName)
		}
	}
	if len(failed) > 0 {
		return results, cerrors.ValidationFailed("%d file(s) failed validation: %v", len(failed), failed)
	}
	return results, nil
}

func extractValidationErrors(err error) []string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		return flattenValidationErrors(ve)
	}
	return []string{err.Error()}
}

// flattenValidationErrors walks the cause tree, reporting leaves only.
func flattenValidationErrors(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		msg := err.Message
		if err.InstanceLocation != "" {
			msg = fmt.Sprintf("at '%s': %s", err.InstanceLocation, err.Message)
		}
		return []string{msg}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, flattenValidationErrors(cause)...)
	}
	return out
}
