package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stock-scout/internal/types"
)

func TestJournalAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	ctx := context.Background()

	for i, symbol := range []string{"MRVL", "SMCI", "NVDA"} {
		if err := j.Append(ctx, rec(symbol, 70+i, time.Now())); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("results_%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected journal file at %s: %v", path, err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r types.Recommendation
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("Line is not valid JSON: %v", err)
		}
		symbols = append(symbols, r.Symbol)
	}
	if len(symbols) != 3 {
		t.Fatalf("Expected 3 journal lines, got %d", len(symbols))
	}
	if symbols[0] != "MRVL" || symbols[2] != "NVDA" {
		t.Errorf("Expected append order preserved, got %v", symbols)
	}
}

func TestJournalCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")
	if _, err := NewJournal(dir); err != nil {
		t.Fatalf("Expected nested directory creation, got %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected directory to exist: %v", err)
	}
}
