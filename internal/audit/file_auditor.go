package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/darmiel/entitled/internal/core"
)

var _ core.Auditor = (*FileAuditor)(nil)

// recentBufferSize bounds how many entries a FileAuditor keeps in memory
// to serve GetRecent; the file itself holds the full history.
const recentBufferSize = 1000

// FileAuditor is an auditor that writes audit logs to a file in JSON format.
type FileAuditor struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	recent  []core.AuditEntry
}

func NewFileAuditor(filePath string) (*FileAuditor, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &FileAuditor{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

func (f *FileAuditor) Log(entry core.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.encoder.Encode(entry); err != nil {
		return fmt.Errorf("writing audit log entry: %w", err)
	}

	f.recent = append(f.recent, entry)
	if len(f.recent) > recentBufferSize {
		f.recent = f.recent[len(f.recent)-recentBufferSize:]
	}
	return nil
}

func (f *FileAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit > len(f.recent) {
		limit = len(f.recent)
	}
	start := len(f.recent) - limit
	entries := make([]core.AuditEntry, limit)
	copy(entries, f.recent[start:])

	return entries, nil
}

func (f *FileAuditor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
