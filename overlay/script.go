package overlay

import (
	"context"
	"fmt"
	"strings"

	"github.com/mqdeck/mqdeck/assist"
)

// ScriptEditorType identifies the script editor overlay.
const ScriptEditorType = "script-editor"

// SyntaxError is a purely local parse failure found by CheckSyntax.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Assistant is what the script editor needs from the assist backend.
type Assistant interface {
	Ask(ctx context.Context, req assist.Request) (*assist.Response, error)
}

// ScriptEditor edits one transformation script. Save runs the static
// syntax check first and never submits a script that fails it.
type ScriptEditor struct {
	field  string
	script string
	docs   []string
	ai     Assistant
	onSave func(script string) error
}

// NewScriptEditor builds the editor for one script field. onSave
// receives the checked script text; ai may be nil when no assistant
// endpoint is configured.
func NewScriptEditor(field, script string, docs []string, ai Assistant, onSave func(string) error) *ScriptEditor {
	return &ScriptEditor{
		field:  field,
		script: script,
		docs:   docs,
		ai:     ai,
		onSave: onSave,
	}
}

func (s *ScriptEditor) Type() string { return ScriptEditorType }

// Reset drops the script text and the reference document list.
func (s *ScriptEditor) Reset() {
	s.script = ""
	s.docs = nil
}

// Script returns the current editor text.
func (s *ScriptEditor) Script() string { return s.script }

// SetScript replaces the editor text.
func (s *ScriptEditor) SetScript(text string) { s.script = text }

// Save checks the script and hands it to the save callback.
func (s *ScriptEditor) Save() error {
	if err := CheckSyntax(s.script); err != nil {
		return err
	}
	if s.onSave == nil {
		return nil
	}
	return s.onSave(s.script)
}

// Assist sends the current script plus the user's instruction to the
// assistant and replaces the editor text with the code block from the
// reply. The reply's trailing explanation is returned for display.
// Selection marks the sub-range the instruction is about; pass an
// empty string when the whole script is the subject.
func (s *ScriptEditor) Assist(ctx context.Context, instruction, selection string) (string, error) {
	if s.ai == nil {
		return "", fmt.Errorf("no assistant endpoint configured")
	}
	scriptCtx := s.script
	if selection != "" {
		scriptCtx = s.script + "\n\nSelected portion:\n" + selection
	}
	resp, err := s.ai.Ask(ctx, assist.Request{
		Prompt:  instruction,
		Context: scriptCtx,
		Docs:    s.docs,
	})
	if err != nil {
		return "", err
	}
	code, explanation, ok := assist.ExtractCode(resp.Text)
	if !ok {
		// No code in the reply: leave the script alone, show the text.
		return resp.Text, nil
	}
	s.script = code
	return explanation, nil
}

// CheckSyntax verifies that a script's brackets balance, ignoring
// bracket characters inside string literals and comments. It catches
// the truncated-paste and mismatched-brace mistakes that otherwise
// only fail at execution time on the broker; it is not a full parser.
func CheckSyntax(script string) error {
	type open struct {
		ch   byte
		line int
	}
	var stack []open
	line := 1

	const (
		code = iota
		lineComment
		blockComment
		singleQuote
		doubleQuote
		backtick
	)
	state := code

	closerFor := map[byte]byte{'(': ')', '[': ']', '{': '}'}

	for i := 0; i < len(script); i++ {
		ch := script[i]
		if ch == '\n' {
			line++
			if state == lineComment {
				state = code
			}
			continue
		}
		switch state {
		case lineComment:
			// consumed until newline above
		case blockComment:
			if ch == '*' && i+1 < len(script) && script[i+1] == '/' {
				state = code
				i++
			}
		case singleQuote, doubleQuote, backtick:
			if ch == '\\' {
				i++
				continue
			}
			if (state == singleQuote && ch == '\'') ||
				(state == doubleQuote && ch == '"') ||
				(state == backtick && ch == '`') {
				state = code
			}
		default:
			switch ch {
			case '/':
				if i+1 < len(script) {
					switch script[i+1] {
					case '/':
						state = lineComment
						i++
					case '*':
						state = blockComment
						i++
					}
				}
			case '\'':
				state = singleQuote
			case '"':
				state = doubleQuote
			case '`':
				state = backtick
			case '(', '[', '{':
				stack = append(stack, open{ch: ch, line: line})
			case ')', ']', '}':
				if len(stack) == 0 {
					return &SyntaxError{Line: line, Message: fmt.Sprintf("unexpected %q", string(ch))}
				}
				top := stack[len(stack)-1]
				if closerFor[top.ch] != ch {
					return &SyntaxError{
						Line:    line,
						Message: fmt.Sprintf("expected %q to close %q from line %d, found %q", string(closerFor[top.ch]), string(top.ch), top.line, string(ch)),
					}
				}
				stack = stack[:len(stack)-1]
			}
		}
	}

	switch state {
	case blockComment:
		return &SyntaxError{Line: line, Message: "unterminated block comment"}
	case singleQuote, doubleQuote, backtick:
		return &SyntaxError{Line: line, Message: "unterminated string literal"}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return &SyntaxError{
			Line:    top.line,
			Message: fmt.Sprintf("unclosed %q", string(top.ch)),
		}
	}
	if strings.TrimSpace(script) == "" {
		return &SyntaxError{Line: 1, Message: "script is empty"}
	}
	return nil
}
