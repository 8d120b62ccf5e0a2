package metafile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// MetaFileName is the name of the backup metadata file written into each
// backup directory.
const MetaFileName = "backup_metadata.json"

// TimestampLayout is the layout of the timestamp identifier that names a
// backup directory.
const TimestampLayout = "20060102_150405"

// MetafileInfo holds the parsed metadata and directory name of a backup
// found on disk.
type MetafileInfo struct {
	DirName  string
	Metadata MetafileContent
}

// MetafileContent holds the contents of the metadata file. It is written
// once, after all category copies for a run have completed.
type MetafileContent struct {
	Version       string    `json:"version"`
	Timestamp     string    `json:"timestamp"`
	TimestampUTC  time.Time `json:"timestampUTC"`
	Hostname      string    `json:"hostname"`
	User          string    `json:"user"`
	Platform      string    `json:"platform,omitempty"`
	PlasmaVersion string    `json:"plasmaVersion,omitempty"`
	Categories    []string  `json:"categories"`
}

// Write creates and writes the backup_metadata.json file into a given directory.
func Write(dirPath string, content *MetafileContent) error {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	jsonData, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal meta data: %w", err)
	}

	if err := os.WriteFile(metaFilePath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not write meta file %s: %w", metaFilePath, err)
	}

	return nil
}

// Read opens and parses the backup_metadata.json file in a given directory.
// It returns the parsed metadata or an error if the file cannot be read or parsed.
func Read(dirPath string) (MetafileContent, error) {
	metaFilePath := filepath.Join(dirPath, MetaFileName)
	metaFile, err := os.Open(metaFilePath)
	if err != nil {
		// Note: os.IsNotExist errors are handled by the caller.
		return MetafileContent{}, err // Return the original error so os.IsNotExist works.
	}
	defer metaFile.Close()

	var content MetafileContent
	decoder := json.NewDecoder(metaFile)
	if err := decoder.Decode(&content); err != nil {
		return MetafileContent{}, fmt.Errorf("could not parse metafile %s: %w. It may be corrupt", metaFilePath, err)
	}

	return content, nil
}
