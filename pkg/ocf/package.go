package ocf

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// File names inside an OCF package.
const (
	StakeholdersFileName = "stakeholders.ocf.json"
	StockClassesFileName = "stock_classes.ocf.json"
	StockLegendsFileName = "stock_legends.ocf.json"
	StockPlansFileName   = "stock_plans.ocf.json"
	TransactionsFileName = "transactions.ocf.json"
	VestingTermsFileName = "vesting_schedules.ocf.json"
	ValuationsFileName   = "valuations.ocf.json"
	ManifestFileName     = "manifest.ocf.json"
)

// ManifestComment is the first manifest comment.
const ManifestComment = "Auto-generated by CE2OCF Contract Express Parser v" + ParserVersion

// PackagedFile is one serialised OCF file.
type PackagedFile struct {
	FileName string
	Contents []byte
	MD5      string
}

// Packaged is a complete OCF package keyed by file type.
type Packaged struct {
	Files map[FileType]PackagedFile
}

// Names returns the packaged file contents keyed by file name.
func (p *Packaged) Names() map[string][]byte {
	out := make(map[string][]byte, len(p.Files))
	for _, f := range p.Files {
		out[f.FileName] = f.Contents
	}
	return out
}

// FileRef points the manifest at one file.
type FileRef struct {
	Filepath string `json:"filepath"`
	MD5      string `json:"md5"`
}

// Manifest is the OCF manifest. Field order is the serialised order.
type Manifest struct {
	FileType          FileType               `json:"file_type"`
	OCFVersion        string                 `json:"ocf_version"`
	Issuer            map[string]interface{} `json:"issuer"`
	AsOf              string                 `json:"as_of"`
	GeneratedAt       string                 `json:"generated_at"`
	Comments          []string               `json:"comments"`
	StockPlansFiles   []FileRef              `json:"stock_plans_files"`
	StockLegendsFiles []FileRef              `json:"stock_legend_templates_files"`
	StockClassesFiles []FileRef              `json:"stock_classes_files"`
	VestingTermsFiles []FileRef              `json:"vesting_terms_files"`
	TransactionsFiles []FileRef              `json:"transactions_files"`
	StakeholdersFiles []FileRef              `json:"stakeholders_files"`
	ValuationsFiles   []FileRef              `json:"valuations_files"`
}

// Marshal encodes v as compact JSON without HTML escaping.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func checksum(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func packFile(name string, v interface{}) (PackagedFile, error) {
	b, err := Marshal(v)
	if err != nil {
		return PackagedFile{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return PackagedFile{FileName: name, Contents: b, MD5: checksum(b)}, nil
}

// Package serialises result into OCF files and a manifest that references
// them by md5. comments are appended after ManifestComment.
func Package(result *Result, comments ...string) (*Packaged, error) {
	if result == nil {
		return nil, fmt.Errorf("nothing to package")
	}

	files := []struct {
		name string
		file File
	}{
		{StakeholdersFileName, result.Stakeholders},
		{StockClassesFileName, result.StockClasses},
		{StockLegendsFileName, result.StockLegends},
		{StockPlansFileName, result.StockPlans},
		{TransactionsFileName, result.Transactions},
		{VestingTermsFileName, result.VestingTerms},
		{ValuationsFileName, result.Valuations},
	}

	out := &Packaged{Files: make(map[FileType]PackagedFile, len(files)+1)}
	refs := make(map[FileType][]FileRef, len(files))
	for _, f := range files {
		if f.file.Items == nil {
			f.file.Items = []interface{}{}
		}
		pf, err := packFile(f.name, f.file)
		if err != nil {
			return nil, err
		}
		out.Files[f.file.FileType] = pf
		refs[f.file.FileType] = []FileRef{{Filepath: pf.FileName, MD5: pf.MD5}}
	}

	t := now().UTC()
	manifest := Manifest{
		FileType:          FileManifest,
		OCFVersion:        Version,
		Issuer:            result.Issuer,
		AsOf:              t.Format("2006-01-02"),
		GeneratedAt:       t.Format(time.RFC3339),
		Comments:          append([]string{ManifestComment}, comments...),
		StockPlansFiles:   refs[FileStockPlans],
		StockLegendsFiles: refs[FileStockLegends],
		StockClassesFiles: refs[FileStockClasses],
		VestingTermsFiles: refs[FileVestingTerms],
		TransactionsFiles: refs[FileTransactions],
		StakeholdersFiles: refs[FileStakeholders],
		ValuationsFiles:   []FileRef{},
	}
	pf, err := packFile(ManifestFileName, manifest)
	if err != nil {
		return nil, err
	}
	out.Files[FileManifest] = pf
	return out, nil
}
