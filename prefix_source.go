package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CSVPrefixSource reads prefixes from the first column of every CSV file matching glob in dir.
// A header row equal to headerSentinel is skipped, as are blank rows.
type CSVPrefixSource struct {
	dir            string
	glob           string
	headerSentinel string
	sugar          *zap.SugaredLogger
}

func NewCSVPrefixSource(config prefixSourceConfig, sugar *zap.SugaredLogger) *CSVPrefixSource {
	return &CSVPrefixSource{
		dir:            config.Dir,
		glob:           config.Glob,
		headerSentinel: config.HeaderSentinel,
		sugar:          sugar,
	}
}

func (c *CSVPrefixSource) Prefixes() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, c.glob))
	if err != nil {
		return nil, fmt.Errorf("error matching prefix files with %s: %w", c.glob, err)
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		c.sugar.Warnf("no prefix files matching %s found in %s", c.glob, c.dir)
	}

	seen := make(map[string]bool)
	var prefixes []string
	for _, path := range paths {
		filePrefixes, err := c.readFile(path)
		if err != nil {
			return nil, err
		}
		for _, prefix := range filePrefixes {
			if seen[prefix] {
				c.sugar.Debugf("prefix %s listed more than once, ignoring repeat in %s", prefix, path)
				continue
			}
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
		c.sugar.Infof("read %d prefixes from %s", len(filePrefixes), path)
	}
	return prefixes, nil
}

func (c *CSVPrefixSource) readFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening prefix file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var prefixes []string
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading prefix file %s: %w", path, err)
		}
		if len(record) == 0 {
			continue
		}
		prefix := strings.TrimSpace(record[0])
		if prefix == "" {
			continue
		}
		if line == 1 && prefix == c.headerSentinel {
			continue
		}
		if err := validatePrefix(prefix); err != nil {
			c.sugar.Warnf("skipping prefix on line %d of %s: %v", line, path, err)
			continue
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

// prefixes become paths under the staging root, so they must stay below it
func validatePrefix(prefix string) error {
	if strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("prefix %s is absolute", prefix)
	}
	for _, segment := range strings.Split(prefix, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("prefix %s contains a relative path segment", prefix)
		}
	}
	return nil
}
