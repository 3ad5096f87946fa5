package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseArchive(t *testing.T) {
	items, err := ParseArchive("bridges.json", []byte(`[{"name":"a"},{"name":"b"}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	// Elements keep their exact bytes.
	if string(items[0]) != `{"name":"a"}` {
		t.Fatalf("element 0 = %s", items[0])
	}
}

func TestParseArchiveRejectsObject(t *testing.T) {
	_, err := ParseArchive("export.json", []byte(`{"name":"a"}`))
	if err == nil || !strings.Contains(err.Error(), "expected JSON array") {
		t.Fatalf("err = %v, want expected JSON array", err)
	}
}

func TestParseArchiveRejectsWrongExtension(t *testing.T) {
	for _, name := range []string{"export.csv", "export.json.txt", "export"} {
		if _, err := ParseArchive(name, []byte(`[]`)); err == nil {
			t.Fatalf("%q accepted", name)
		}
	}
	// Extension match is case-insensitive.
	if _, err := ParseArchive("EXPORT.JSON", []byte(`[]`)); err != nil {
		t.Fatalf("uppercase extension rejected: %v", err)
	}
}

func TestParseArchiveRejectsGarbage(t *testing.T) {
	if _, err := ParseArchive("x.json", []byte(`[{"name":`)); err == nil {
		t.Fatal("truncated archive accepted")
	}
}

func TestImportContinuesPastFailures(t *testing.T) {
	items := []json.RawMessage{
		json.RawMessage(`{"name":"a"}`),
		json.RawMessage(`{"name":"bad"}`),
		json.RawMessage(`{"name":"c"}`),
	}
	var sent []string
	res := Import(context.Background(), items, func(ctx context.Context, raw json.RawMessage) error {
		if strings.Contains(string(raw), "bad") {
			return errors.New("rejected by broker")
		}
		sent = append(sent, string(raw))
		return nil
	})
	if res.Imported != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Error(), "element 1") {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(sent) != 2 {
		t.Fatalf("sent = %v", sent)
	}
}

func TestImportStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	items := []json.RawMessage{
		json.RawMessage(`1`), json.RawMessage(`2`), json.RawMessage(`3`),
	}
	calls := 0
	res := Import(ctx, items, func(ctx context.Context, raw json.RawMessage) error {
		calls++
		cancel()
		return nil
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if res.Imported != 1 || res.Failed != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestExport(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	name, data, err := Export("bridges", []map[string]string{{"name": "a"}}, now)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "bridges-2026-08-30.json" {
		t.Fatalf("name = %q", name)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Fatalf("archive not pretty-printed:\n%s", data)
	}
	// The artifact must import back.
	if _, err := ParseArchive(name, data); err != nil {
		t.Fatalf("round trip: %v", err)
	}
}
