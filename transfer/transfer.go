// Package transfer moves entity collections in and out of the console
// as JSON archives. An archive is a plain JSON array; each element is
// forwarded to the broker exactly as it appears in the file, so
// archives written by other tools round-trip without loss.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ParseArchive checks the file name and decodes the archive into its
// elements. Only the extension is inspected, never the name itself.
func ParseArchive(filename string, data []byte) ([]json.RawMessage, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".json") {
		return nil, fmt.Errorf("unsupported file %q: a .json archive is required", filepath.Base(filename))
	}
	trimmed := strings.TrimLeftFunc(string(data), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("expected JSON array")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse archive: %w", err)
	}
	return items, nil
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Failed   int
	Errors   []error
}

// Import forwards every element through send. A failing element is
// recorded and skipped; the rest of the archive still imports.
func Import(ctx context.Context, items []json.RawMessage, send func(context.Context, json.RawMessage) error) Result {
	var res Result
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			res.Failed += len(items) - i
			res.Errors = append(res.Errors, err)
			return res
		}
		if err := send(ctx, item); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("element %d: %w", i, err))
			continue
		}
		res.Imported++
	}
	return res
}

// Export pretty-prints items and names the artifact with the current
// date, e.g. "bridges-2026-08-30.json".
func Export(prefix string, items any, now time.Time) (filename string, data []byte, err error) {
	data, err = json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode archive: %w", err)
	}
	data = append(data, '\n')
	return fmt.Sprintf("%s-%s.json", prefix, now.Format("2006-01-02")), data, nil
}
