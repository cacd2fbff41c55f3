package sitedb

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the site database
type Loader struct {
	filePath string
}

// NewLoader creates a new site database loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the site database. JSON documents go through
// json-iterator, anything else is read as YAML.
func (l *Loader) Load() (Database, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return Database{}, fmt.Errorf("failed to read site database: %w", err)
	}

	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\xef\xbb\xbf"))
	if len(data) == 0 {
		return Database{}, fmt.Errorf("site database %s is empty", l.filePath)
	}

	var db Database
	if data[0] == '{' {
		data = stripLineComments(data)
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &db); err != nil {
			return Database{}, fmt.Errorf("failed to parse site database json: %w", err)
		}
		return db, nil
	}

	if err := yaml.Unmarshal(data, &db); err != nil {
		return Database{}, fmt.Errorf("failed to parse site database yaml: %w", err)
	}
	return db, nil
}

// stripLineComments removes whole-line // comments that hand-edited
// databases often carry.
// Example: `  // "sites": [...]` -> ""
func stripLineComments(data []byte) []byte {
	re := regexp.MustCompile(`(?m)^\s*//.*$`)
	return re.ReplaceAll(data, nil)
}
