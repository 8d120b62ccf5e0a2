package treecopy

import "fmt"

// FailureKind enumerates the points at which a copy run can fail. Every
// failure is classified at its point of occurrence; there is no catch-all.
type FailureKind int

const (
	// FailureDestinationCreate means the destination directory (or a parent
	// of a destination file) could not be created.
	FailureDestinationCreate FailureKind = iota
	// FailureSourceEnumeration means the children of a source directory
	// could not be listed.
	FailureSourceEnumeration
	// FailureSymlinkResolution means a symlink chain could not be followed
	// to a final target (broken link, loop, or permission error).
	FailureSymlinkResolution
	// FailureFileCopy means a file's content could not be copied.
	FailureFileCopy
)

var failureKindNames = map[FailureKind]string{
	FailureDestinationCreate: "destination-create",
	FailureSourceEnumeration: "source-enumeration",
	FailureSymlinkResolution: "symlink-resolution",
	FailureFileCopy:          "file-copy",
}

func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown_failure_kind(%d)", int(k))
}

// CopyError is the error type returned by CopyTree in fail-fast mode. It
// identifies which decision point failed and for which path.
type CopyError struct {
	Kind FailureKind
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Kind, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}
