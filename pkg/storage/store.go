// Package storage uploads packaged cap tables to blob storage.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ContentTypeZip is the content type of uploaded archives.
const ContentTypeZip = "application/zip"

// ArchiveStore stores OCF archives.
type ArchiveStore interface {
	// Put uploads data under name and returns its URL
	Put(ctx context.Context, name string, data []byte, metadata map[string]string) (string, error)

	// Get downloads an archive by URL or name
	Get(ctx context.Context, ref string) ([]byte, error)
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// ArchiveName builds a blob name for an issuer's archive, e.g.
// "acme-robotics-inc/20230301T120000Z.ocf.zip".
func ArchiveName(issuer string, at time.Time) string {
	slug := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(issuer), "-"), "-")
	if slug == "" {
		slug = "issuer"
	}
	return fmt.Sprintf("%s/%s.ocf.zip", slug, at.UTC().Format("20060102T150405Z"))
}
