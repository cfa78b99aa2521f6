package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stock-scout/internal/interfaces"
	"stock-scout/internal/types"
)

// Journal appends every consultation result to results_YYYY-MM-DD.jsonl,
// one object per line, regardless of rating. It exists for offline review
// and backtesting, not for the pipeline's own reads.
type Journal struct {
	mu  sync.Mutex
	dir string
}

var _ interfaces.ResultsJournal = (*Journal)(nil)

func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) Append(_ context.Context, rec *types.Recommendation) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	path := filepath.Join(j.dir, fmt.Sprintf("results_%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}
