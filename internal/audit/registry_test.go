package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/darmiel/entitled/internal/config"
	"github.com/darmiel/entitled/internal/core"
)

func entry(id, action string) core.AuditEntry {
	return core.AuditEntry{
		ID:            id,
		Time:          time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Action:        action,
		ApplicationID: "contosoHR",
		Granted:       true,
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuditConfig
		want    any
		wantErr bool
	}{
		{
			name: "Disabled",
			cfg:  config.AuditConfig{Enabled: false, Type: "memory"},
			want: &NoopAuditor{},
		},
		{
			name: "Memory",
			cfg:  config.AuditConfig{Enabled: true, Type: "memory"},
			want: &InMemoryAuditor{},
		},
		{
			name:    "Unknown Type",
			cfg:     config.AuditConfig{Enabled: true, Type: "carrier-pigeon"},
			wantErr: true,
		},
		{
			name:    "File Without Path",
			cfg:     config.AuditConfig{Enabled: true, Type: "file"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, err := Build(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Build() should have failed")
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			defer auditor.Close()

			switch tt.want.(type) {
			case *NoopAuditor:
				if _, ok := auditor.(*NoopAuditor); !ok {
					t.Errorf("Build() = %T, want *NoopAuditor", auditor)
				}
			case *InMemoryAuditor:
				if _, ok := auditor.(*InMemoryAuditor); !ok {
					t.Errorf("Build() = %T, want *InMemoryAuditor", auditor)
				}
			}
		})
	}
}

func TestInMemoryAuditor_GetRecent(t *testing.T) {
	a := NewInMemoryAuditor()
	for _, id := range []string{"a", "b", "c"} {
		if err := a.Log(entry(id, core.AuditActionAcquire)); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	recent, err := a.GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "b" || recent[1].ID != "c" {
		t.Errorf("GetRecent(2) = %v, want the two newest entries in order", recent)
	}

	all, err := a.GetRecent(100)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("GetRecent(100) returned %d entries, want 3", len(all))
	}
}

func TestInMemoryAuditor_Find(t *testing.T) {
	a := NewInMemoryAuditor()
	_ = a.Log(entry("a", core.AuditActionAcquire))
	_ = a.Log(entry("b", core.AuditActionRelease))
	_ = a.Log(entry("c", core.AuditActionAcquire))

	matches, err := a.Find(func(e core.AuditEntry) bool {
		return e.Action == core.AuditActionAcquire
	}, 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Find() returned %d entries, want 2", len(matches))
	}
}

func TestFileAuditor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	a, err := Build(config.AuditConfig{
		Enabled: true,
		Type:    "file",
		Options: map[string]any{"path": path},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := a.Log(entry("a", core.AuditActionAcquire)); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := a.Log(entry("b", core.AuditActionRenew)); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	recent, err := a.GetRecent(1)
	if err != nil {
		t.Fatalf("GetRecent() error = %v", err)
	}
	if len(recent) != 1 || recent[0].ID != "b" {
		t.Errorf("GetRecent(1) = %v, want the newest entry", recent)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// every entry must be one JSON line in the file
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening audit file: %v", err)
	}
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded core.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("audit file holds %d entries, want 2", lines)
	}
}
