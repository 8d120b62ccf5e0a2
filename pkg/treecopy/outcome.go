package treecopy

import "fmt"

// OutcomeKind classifies the per-entry result of a tree copy.
type OutcomeKind int

const (
	// Copied means the entry's content was written to the destination.
	Copied OutcomeKind = iota
	// SkippedBrokenSymlink means a symlink could not be resolved to a target.
	SkippedBrokenSymlink
	// SkippedDirectorySymlink means a symlink resolved to a directory, which
	// is never descended into.
	SkippedDirectorySymlink
	// SkippedPermission means the entry could not be copied due to a
	// permission error.
	SkippedPermission
	// SkippedOther means the entry could not be copied for any other reason
	// (I/O error, disk full, ...).
	SkippedOther
)

var outcomeKindNames = map[OutcomeKind]string{
	Copied:                  "copied",
	SkippedBrokenSymlink:    "skipped-broken-symlink",
	SkippedDirectorySymlink: "skipped-directory-symlink",
	SkippedPermission:       "skipped-permission",
	SkippedOther:            "skipped-error",
}

func (k OutcomeKind) String() string {
	if name, ok := outcomeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown_outcome_kind(%d)", int(k))
}

// Outcome is a single per-entry decision record emitted during a copy run.
// RelPath is relative to the source root of the run. Err carries the
// underlying cause for Skipped* kinds; it is nil for Copied.
type Outcome struct {
	Kind    OutcomeKind
	RelPath string
	Err     error
}

// Summary aggregates the outcomes of one copy run.
type Summary struct {
	Copied                   int64
	SkippedBrokenSymlinks    int64
	SkippedDirectorySymlinks int64
	SkippedPermission        int64
	SkippedOther             int64
	BytesCopied              int64
}

// Skipped returns the total number of skipped entries.
func (s *Summary) Skipped() int64 {
	return s.SkippedBrokenSymlinks + s.SkippedDirectorySymlinks + s.SkippedPermission + s.SkippedOther
}

// Add accumulates another summary into this one.
func (s *Summary) Add(other Summary) {
	s.Copied += other.Copied
	s.SkippedBrokenSymlinks += other.SkippedBrokenSymlinks
	s.SkippedDirectorySymlinks += other.SkippedDirectorySymlinks
	s.SkippedPermission += other.SkippedPermission
	s.SkippedOther += other.SkippedOther
	s.BytesCopied += other.BytesCopied
}

func (s *Summary) count(kind OutcomeKind) {
	switch kind {
	case Copied:
		s.Copied++
	case SkippedBrokenSymlink:
		s.SkippedBrokenSymlinks++
	case SkippedDirectorySymlink:
		s.SkippedDirectorySymlinks++
	case SkippedPermission:
		s.SkippedPermission++
	case SkippedOther:
		s.SkippedOther++
	}
}
