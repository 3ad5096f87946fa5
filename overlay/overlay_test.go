package overlay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mqdeck/mqdeck/assist"
)

type stubOverlay struct {
	typ    string
	resets int
}

func (s *stubOverlay) Type() string { return s.typ }
func (s *stubOverlay) Reset()       { s.resets++ }

func TestOpenSingletonPerType(t *testing.T) {
	m := NewManager()
	first := &stubOverlay{typ: "confirm"}
	got, replaced := m.Open(first)
	if replaced || got != first {
		t.Fatalf("first open: got %v replaced %v", got, replaced)
	}

	second := &stubOverlay{typ: "confirm"}
	got, replaced = m.Open(second)
	if !replaced {
		t.Fatal("second open of same type did not report replacement")
	}
	if got != first {
		t.Fatal("replacement created a second instance")
	}
	if first.resets != 1 {
		t.Fatalf("existing instance resets = %d, want 1", first.resets)
	}
	if m.OpenCount() != 1 {
		t.Fatalf("open count = %d", m.OpenCount())
	}
}

func TestCloseClearsAfterDelay(t *testing.T) {
	m := NewManager()
	m.clearIn = 10 * time.Millisecond
	o := &stubOverlay{typ: "script-editor"}
	m.Open(o)
	m.Close("script-editor")

	if _, ok := m.Get("script-editor"); ok {
		t.Fatal("overlay still open after close")
	}
	if o.resets != 0 {
		t.Fatal("content cleared before the delay")
	}
	time.Sleep(50 * time.Millisecond)
	if o.resets != 1 {
		t.Fatalf("resets = %d after delay, want 1", o.resets)
	}
}

func TestReopenCancelsPendingClear(t *testing.T) {
	m := NewManager()
	m.clearIn = 20 * time.Millisecond
	o := &stubOverlay{typ: "detail"}
	m.Open(o)
	m.Close("detail")
	m.Open(o) // quick reopen keeps content

	time.Sleep(60 * time.Millisecond)
	if o.resets != 0 {
		t.Fatalf("resets = %d, want 0 (reopen should cancel the clear)", o.resets)
	}
}

func TestFiredClearSkipsReopenedContent(t *testing.T) {
	m := NewManager()
	m.clearIn = 20 * time.Millisecond
	o := &stubOverlay{typ: "detail"}
	m.Open(o)
	m.Close("detail")

	// Hold the lock so the fired clear callback parks on it, then
	// reopen before letting it run. Stop comes back false because the
	// timer already fired; the callback must notice its entry is gone
	// and leave the reopened content alone.
	m.mu.Lock()
	time.Sleep(50 * time.Millisecond)
	m.clears["detail"].Stop()
	delete(m.clears, "detail")
	m.open["detail"] = o
	m.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	if o.resets != 0 {
		t.Fatalf("resets = %d, want 0 (reopened content was cleared)", o.resets)
	}
}

func TestDismissClosesAll(t *testing.T) {
	m := NewManager()
	m.Open(&stubOverlay{typ: "a"})
	m.Open(&stubOverlay{typ: "b"})
	m.Dismiss()
	if m.OpenCount() != 0 {
		t.Fatalf("open count after dismiss = %d", m.OpenCount())
	}
	m.Teardown()
}

func TestCheckSyntax(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{name: "balanced", script: "function f(msg) {\n  return msg.payload;\n}"},
		{name: "brackets in string", script: `return "]}" + msg;`},
		{name: "brackets in comment", script: "// ignore }\nreturn (1);"},
		{name: "brackets in block comment", script: "/* } */ return [1];"},
		{name: "escaped quote", script: `return 'it\'s (fine)';`},
		{name: "template literal", script: "return `a { b`;"},
		{name: "unclosed brace", script: "function f() {\n return 1;", wantErr: `unclosed "{"`},
		{name: "stray closer", script: "return 1);", wantErr: `unexpected ")"`},
		{name: "mismatched pair", script: "return (1];", wantErr: `found "]"`},
		{name: "unterminated string", script: `return "oops;`, wantErr: "unterminated string"},
		{name: "unterminated comment", script: "/* never ends", wantErr: "unterminated block comment"},
		{name: "empty", script: "  \n ", wantErr: "script is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSyntax(tt.script)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("CheckSyntax: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("CheckSyntax accepted a broken script")
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("error type %T", err)
			}
			if got := se.Error(); !strings.Contains(got, tt.wantErr) {
				t.Fatalf("error = %q, want substring %q", got, tt.wantErr)
			}
		})
	}
}

func TestCheckSyntaxReportsOpeningLine(t *testing.T) {
	err := CheckSyntax("line1\nfunction f( {\nreturn 1;\n}")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v", err)
	}
	if se.Line != 2 {
		t.Fatalf("line = %d, want 2", se.Line)
	}
}

type fakeAssistant struct {
	lastReq assist.Request
	reply   assist.Response
	err     error
}

func (f *fakeAssistant) Ask(ctx context.Context, req assist.Request) (*assist.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &f.reply, nil
}

func TestScriptEditorSaveRejectsBrokenScript(t *testing.T) {
	saved := ""
	ed := NewScriptEditor("transform", "return 1;", nil, nil, func(s string) error {
		saved = s
		return nil
	})
	ed.SetScript("return (1;")
	if err := ed.Save(); err == nil {
		t.Fatal("broken script saved")
	}
	if saved != "" {
		t.Fatal("save callback ran for a broken script")
	}
	ed.SetScript("return (1);")
	if err := ed.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved != "return (1);" {
		t.Fatalf("saved = %q", saved)
	}
}

func TestScriptEditorAssistReplacesWithCodeBlock(t *testing.T) {
	ai := &fakeAssistant{reply: assist.Response{
		Text: "Sure:\n```js\nreturn msg.payload * 2;\n```\nDoubles the value.",
	}}
	ed := NewScriptEditor("transform", "return msg;", []string{"transform-api"}, ai, nil)

	expl, err := ed.Assist(context.Background(), "double the payload", "")
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if ed.Script() != "return msg.payload * 2;" {
		t.Fatalf("script = %q", ed.Script())
	}
	if expl != "Doubles the value." {
		t.Fatalf("explanation = %q", expl)
	}
	if len(ai.lastReq.Docs) != 1 || ai.lastReq.Docs[0] != "transform-api" {
		t.Fatalf("docs forwarded = %v", ai.lastReq.Docs)
	}
}

func TestScriptEditorAssistNoCodeKeepsScript(t *testing.T) {
	ai := &fakeAssistant{reply: assist.Response{Text: "That script already looks fine."}}
	ed := NewScriptEditor("transform", "return msg;", nil, ai, nil)
	text, err := ed.Assist(context.Background(), "review this", "")
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if ed.Script() != "return msg;" {
		t.Fatal("script changed although the reply had no code block")
	}
	if text != "That script already looks fine." {
		t.Fatalf("text = %q", text)
	}
}

func TestScriptEditorResetClearsDocs(t *testing.T) {
	ed := NewScriptEditor("transform", "return msg;", []string{"doc"}, nil, nil)
	ed.Reset()
	if ed.Script() != "" {
		t.Fatal("script not cleared")
	}
}
