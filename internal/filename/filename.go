// Package filename implements the backup filename grammar (spec §6):
// backup_<sanitized-target>_<UTC timestamp>.<db-suffix>[.gz][.enc], and the
// inverse parsing used by restore to recover a backup's logical shape from
// its name alone.
package filename

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const timeLayout = "20060102_150405"

var invalidTargetChars = regexp.MustCompile(`[^a-z0-9_-]+`)
var collapseUnderscores = regexp.MustCompile(`_+`)

// SanitizeTarget lowercases name and strips everything outside
// [a-z0-9_-], collapsing runs of underscores produced by the stripping.
// This is also the storage key's target-folder segment.
func SanitizeTarget(name string) string {
	lower := strings.ToLower(name)
	stripped := invalidTargetChars.ReplaceAllString(lower, "_")
	collapsed := collapseUnderscores.ReplaceAllString(stripped, "_")
	return strings.Trim(collapsed, "_")
}

// Compose builds a filename for a fresh backup artifact. suffix is the
// engine-logical suffix from the database adapter (".dump", ".sql", ".db",
// ".cypher"); gzip and encrypt report which transform stages were applied,
// appending ".gz" and ".enc" in that order.
func Compose(targetName string, when time.Time, suffix string, gzip, encrypt bool) string {
	var b strings.Builder
	b.WriteString("backup_")
	b.WriteString(SanitizeTarget(targetName))
	b.WriteByte('_')
	b.WriteString(when.UTC().Format(timeLayout))
	b.WriteString(suffix)
	if gzip {
		b.WriteString(".gz")
	}
	if encrypt {
		b.WriteString(".enc")
	}
	return b.String()
}

// Parsed is the decomposed shape of a backup filename, used by restore to
// decide which reverse transforms to apply and whether a supplied
// encryption password is required.
type Parsed struct {
	Target    string
	Timestamp time.Time
	DBSuffix  string
	Gzipped   bool
	Encrypted bool
}

var filenamePattern = regexp.MustCompile(
	`^backup_([a-z0-9_-]+)_(\d{8}_\d{6})(\.[a-z0-9]+)(\.gz)?(\.enc)?$`)

// Parse decomposes a filename matching Compose's grammar. Returns an error
// if name doesn't match the grammar at all — callers treat that as
// INCOMPATIBLE_BACKUP rather than attempting a best-effort guess.
func Parse(name string) (Parsed, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, fmt.Errorf("filename: %q does not match backup grammar", name)
	}

	ts, err := time.Parse(timeLayout, m[2])
	if err != nil {
		return Parsed{}, fmt.Errorf("filename: %q has an invalid timestamp: %w", name, err)
	}

	return Parsed{
		Target:    m[1],
		Timestamp: ts.UTC(),
		DBSuffix:  m[3],
		Gzipped:   m[4] != "",
		Encrypted: m[5] != "",
	}, nil
}

// StorageKey joins a sanitized target folder and filename into the object
// key destinations are addressed by (spec §4.3: "object key =
// <target_folder>/<filename>").
func StorageKey(targetFolder, name string) string {
	return targetFolder + "/" + name
}
