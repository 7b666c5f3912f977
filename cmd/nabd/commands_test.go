package main

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/nabdhq/nabd/internal/linkcheck"
)

func TestWriteDeadLinkBackupConfirmedOnly(t *testing.T) {
	dir := t.TempDir()
	report := linkcheck.Report{
		Dead: []linkcheck.Result{
			{ToolID: "a", Title: "Gone", URL: "https://gone.example", ConfirmedDead: true, Reason: "HTTP_404"},
			{ToolID: "b", Title: "Maybe", URL: "https://maybe.example", ConfirmedDead: false, Reason: "TIMEOUT"},
		},
	}

	path, err := writeDeadLinkBackup(dir, report)
	if err != nil {
		t.Fatalf("writeDeadLinkBackup: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Errorf("backup written outside data dir: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	var saved []linkcheck.Result
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("backup is not valid JSON: %v", err)
	}
	if len(saved) != 1 || saved[0].ToolID != "a" {
		t.Errorf("expected only the confirmed-dead tool in backup, got %+v", saved)
	}
}

func TestWriteDeadLinkBackupEmpty(t *testing.T) {
	path, err := writeDeadLinkBackup(t.TempDir(), linkcheck.Report{})
	if err != nil {
		t.Fatalf("writeDeadLinkBackup: %v", err)
	}
	if path != "" {
		t.Errorf("expected no backup file for an empty report, got %s", path)
	}
}
