// Package export renders workflow status reports for download as PDF or
// DOCX.
package export

import "errors"

// Format selects the export output type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Result is a rendered report ready to stream to the caller.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing means no chromium binary is on the PATH.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing means pandoc is not on the PATH.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
