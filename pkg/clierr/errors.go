// Package clierr defines the categorized error kinds surfaced across the
// compile pipeline and the helpers that translate them into CLI exit
// behavior.
package clierr

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind identifies one of the error categories from the error handling
// design: ConfigInvalid, SourceReadFailed, SyntaxError, TypeCheckError,
// TransformFailure, EmptyOutput, WorkerTimeout, WorkerCrash, Internal.
type Kind string

const (
	KindConfigInvalid    Kind = "config_invalid"
	KindSourceReadFailed Kind = "source_read_failed"
	KindSyntaxError      Kind = "syntax_error"
	KindTypeCheckError   Kind = "type_check_error"
	KindTransformFailure Kind = "transform_failure"
	KindEmptyOutput      Kind = "empty_output"
	KindWorkerTimeout    Kind = "worker_timeout"
	KindWorkerCrash      Kind = "worker_crash"
	KindInternal         Kind = "internal"
)

// UserError is a categorized, user-facing error with a short title, a
// longer detail line, and an actionable hint. File/Line/Column are set
// when the error is anchored to a specific source location.
type UserError struct {
	Kind   Kind
	Title  string
	Detail string
	Hint   string
	File   string
	Line   int
	Column int
	Err    error
}

func (e *UserError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("%s: %s (%s:%d:%d)", e.Title, e.Detail, e.File, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Err }

func NewConfigInvalid(detail, hint string, err error) *UserError {
	return &UserError{Kind: KindConfigInvalid, Title: "Invalid configuration", Detail: detail, Hint: hint, Err: err}
}

func NewSourceReadFailed(file, hint string, err error) *UserError {
	return &UserError{Kind: KindSourceReadFailed, Title: "Could not read source file", Detail: file, Hint: hint, File: file, Err: err}
}

func NewSyntaxError(file string, line, col int, detail string, err error) *UserError {
	return &UserError{Kind: KindSyntaxError, Title: "Syntax error", Detail: detail, File: file, Line: line, Column: col, Err: err}
}

func NewTypeCheckError(file, detail string, err error) *UserError {
	return &UserError{Kind: KindTypeCheckError, Title: "Type check failed", Detail: detail, File: file, Err: err}
}

func NewTransformFailure(file, stage string, err error) *UserError {
	return &UserError{
		Kind:   KindTransformFailure,
		Title:  "Transform stage failed",
		Detail: fmt.Sprintf("stage %q: %v", stage, err),
		Hint:   "Check the stage implementation and input source for malformed syntax",
		File:   file,
		Err:    err,
	}
}

func NewEmptyOutput(file string) *UserError {
	return &UserError{
		Kind:   KindEmptyOutput,
		Title:  "Empty output after minification",
		Detail: "non-empty input produced empty output",
		Hint:   "Treated as a syntax error; inspect the minifier stage input",
		File:   file,
	}
}

func NewWorkerTimeout(file string, err error) *UserError {
	return &UserError{Kind: KindWorkerTimeout, Title: "Type-check timed out", Detail: file, File: file, Err: err}
}

func NewWorkerCrash(file string, err error) *UserError {
	return &UserError{Kind: KindWorkerCrash, Title: "Type-check worker crashed", Detail: file, File: file, Err: err}
}

func NewInternalError(title, detail, hint string, err error) *UserError {
	return &UserError{Kind: KindInternal, Title: title, Detail: detail, Hint: hint, Err: err}
}

// ExitCode maps a Kind to the process exit code from spec.md §6: 0
// success, 1 compile errors present, 2 configuration invalid.
func (e *UserError) ExitCode() int {
	if e.Kind == KindConfigInvalid {
		return 2
	}
	return 1
}

// FatalError prints err (as JSON if jsonMode) and terminates the process
// with its exit code.
func FatalError(err error, jsonMode bool) {
	ue, ok := err.(*UserError)
	if !ok {
		ue = NewInternalError("Unexpected error", err.Error(), "", err)
	}

	if jsonMode {
		payload := map[string]any{
			"kind":   ue.Kind,
			"title":  ue.Title,
			"detail": ue.Detail,
		}
		if ue.Hint != "" {
			payload["hint"] = ue.Hint
		}
		if ue.File != "" {
			payload["file"] = ue.File
		}
		enc, _ := json.Marshal(payload)
		fmt.Fprintln(os.Stderr, string(enc))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
		if ue.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		}
		if ue.File != "" {
			fmt.Fprintf(os.Stderr, "  file: %s\n", ue.File)
		}
		if ue.Hint != "" {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", ue.Hint)
		}
	}

	os.Exit(ue.ExitCode())
}
