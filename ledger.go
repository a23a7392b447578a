package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FailureLedger is a set of newline-delimited files recording what failed verification.
// Appends are serialized through mu; separate processes sharing a ledger dir are not supported.
type FailureLedger struct {
	dir   string
	mu    sync.Mutex
	sugar *zap.SugaredLogger
}

func NewFailureLedger(dir string, sugar *zap.SugaredLogger) *FailureLedger {
	return &FailureLedger{dir: dir, sugar: sugar}
}

func (l *FailureLedger) pathFor(ledgerName string) string {
	return filepath.Join(l.dir, ledgerName)
}

// Record appends value to the named ledger unless that exact line is already there.
// It returns true if the value was appended.
func (l *FailureLedger) Record(value string, ledgerName string) (bool, error) {
	if value == "" || strings.ContainsAny(value, "\r\n") {
		return false, fmt.Errorf("invalid ledger value %q", value)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, os.FileMode(0755)); err != nil {
		return false, fmt.Errorf("error creating ledger directory %s: %w", l.dir, err)
	}
	path := l.pathFor(ledgerName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, os.FileMode(0644))
	if err != nil {
		return false, fmt.Errorf("error opening ledger %s: %w", path, err)
	}
	defer f.Close()

	contents, err := io.ReadAll(f)
	if err != nil {
		return false, fmt.Errorf("error reading ledger %s: %w", path, err)
	}
	for _, line := range splitLedgerLines(contents) {
		if line == value {
			l.sugar.Debugf("%s already recorded in %s", value, ledgerName)
			return false, nil
		}
	}

	entry := value + "\n"
	if len(contents) > 0 && contents[len(contents)-1] != '\n' {
		entry = "\n" + entry
	}
	// O_APPEND is not used because the file was read first; the offset is already at EOF
	if _, err := f.WriteString(entry); err != nil {
		return false, fmt.Errorf("error appending to ledger %s: %w", path, err)
	}
	return true, nil
}

// Entries returns the lines of a ledger, or nothing if it has never been written
func (l *FailureLedger) Entries(ledgerName string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	contents, err := os.ReadFile(l.pathFor(ledgerName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return splitLedgerLines(contents), nil
}

func splitLedgerLines(contents []byte) []string {
	var lines []string
	for _, raw := range bytes.Split(contents, []byte("\n")) {
		line := strings.TrimRight(string(raw), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
