// Package verify checks that copied files match their sources by comparing
// BLAKE3 content digests.
package verify

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Mismatch describes one verified file whose destination content does not
// match its source.
type Mismatch struct {
	RelPath string
	Reason  string
}

// HashFile returns the hex-encoded BLAKE3 digest of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File reports whether the two files have identical content.
func File(srcPath, dstPath string) (bool, error) {
	srcSum, err := HashFile(srcPath)
	if err != nil {
		return false, err
	}
	dstSum, err := HashFile(dstPath)
	if err != nil {
		return false, err
	}
	return srcSum == dstSum, nil
}

// Tree verifies the given paths, relative to both roots, and returns a
// mismatch entry for every file whose destination differs from or is
// missing next to its source. Hash failures count as mismatches rather
// than aborting the pass; ctx cancellation aborts it.
func Tree(ctx context.Context, srcRoot, dstRoot string, relPaths []string) ([]Mismatch, error) {
	var mismatches []Mismatch
	for _, rel := range relPaths {
		if err := ctx.Err(); err != nil {
			return mismatches, err
		}

		equal, err := File(filepath.Join(srcRoot, rel), filepath.Join(dstRoot, rel))
		if err != nil {
			mismatches = append(mismatches, Mismatch{RelPath: rel, Reason: err.Error()})
			continue
		}
		if !equal {
			mismatches = append(mismatches, Mismatch{RelPath: rel, Reason: "content digest differs"})
		}
	}
	return mismatches, nil
}
