// Package objectkey decomposes data-lake object keys and builds the keys
// objects are relocated to as they move between staging areas.
//
// Keys follow the layout <rootPrefix>/<stage>/<sourceId>/<filename>, where
// rootPrefix may itself contain any number of segments
// (e.g. DataLakeV1/ArrivalHub/Delivered/SRC1/data.json).
package objectkey

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MinSegments is the minimum number of "/"-separated segments a key must have:
// at least one root segment, the stage folder, the source id and the filename.
const MinSegments = 4

// ErrInvalidPathDepth is returned by Parse for keys with fewer than MinSegments segments.
var ErrInvalidPathDepth = errors.New("invalid object path depth")

// Key is a parsed object key.
type Key struct {
	// Raw is the key exactly as it was parsed.
	Raw string
	// RootPrefix is everything before the final three segments.
	RootPrefix string
	// Stage is the third-to-last segment (Delivered, PendingSelection, ...).
	Stage    string
	SourceID string
	Filename string
}

// Parse splits key on "/" and derives root prefix, stage, source id and filename.
// Empty segments are kept as-is; "a//b/c" has four segments.
func Parse(key string) (Key, error) {
	parts := strings.Split(key, "/")
	n := len(parts)
	if n < MinSegments {
		return Key{}, fmt.Errorf("%w: expected at least %d segments, got %d in %q",
			ErrInvalidPathDepth, MinSegments, n, key)
	}
	return Key{
		Raw:        key,
		RootPrefix: strings.Join(parts[:n-3], "/"),
		Stage:      parts[n-3],
		SourceID:   parts[n-2],
		Filename:   parts[n-1],
	}, nil
}

// Join builds rootPrefix/<stage>/<parts...>, skipping empty parts so that a
// missing source folder never produces a double slash.
func Join(rootPrefix, stage string, parts ...string) string {
	segs := make([]string, 0, len(parts)+2)
	segs = append(segs, rootPrefix, stage)
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// PrefixOptions selects which parts PrefixName prepends to a filename.
type PrefixOptions struct {
	Date bool // YYYYMMDD (UTC)
	Time bool // HHMMSS (UTC)
	UUID bool // random v4 UUID
	// Sep separates parts; defaults to "_".
	Sep string
}

// Namer prefixes filenames. Now and NewID are injectable for tests.
type Namer struct {
	Now   func() time.Time
	NewID func() string
}

// DefaultNamer uses the wall clock and random v4 UUIDs.
var DefaultNamer = Namer{
	Now:   time.Now,
	NewID: func() string { return uuid.NewString() },
}

// PrefixName returns <date><sep><time><sep><uuid><sep><name>, including only
// the parts enabled in opts.
func (n Namer) PrefixName(name string, opts PrefixOptions) string {
	sep := opts.Sep
	if sep == "" {
		sep = "_"
	}
	now := n.Now().UTC()

	var b strings.Builder
	if opts.Date {
		b.WriteString(now.Format("20060102"))
		b.WriteString(sep)
	}
	if opts.Time {
		b.WriteString(now.Format("150405"))
		b.WriteString(sep)
	}
	if opts.UUID {
		b.WriteString(n.NewID())
		b.WriteString(sep)
	}
	b.WriteString(name)
	return b.String()
}

// PrefixName prefixes name using DefaultNamer.
func PrefixName(name string, opts PrefixOptions) string {
	return DefaultNamer.PrefixName(name, opts)
}
