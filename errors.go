package projectm

import (
	"fmt"
	"strings"
)

// ParseError describes a syntax or binding failure inside one equation block
// or shader source. It is localized: the enclosing preset may still load with
// the failed block disabled.
type ParseError struct {
	// Pos is the byte offset into the equation text where the error was detected.
	Pos int
	// Msg is a human-readable description of the failure.
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// SectionError records the failure of one named preset section during a load.
type SectionError struct {
	// Section is the preset key that failed, e.g. "per_frame" or "warp_shader".
	Section string
	// Err is the underlying failure, typically a *ParseError.
	Err error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("section %q: %v", e.Section, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// LoadError is returned when a preset cannot be loaded at all, because a
// required section failed to parse. Section errors for non-required sections
// are reported as warnings on the Preset instead.
type LoadError struct {
	// Name is the preset name passed to the load call.
	Name string
	// Sections lists every section that failed, required or not.
	Sections []*SectionError
}

func (e *LoadError) Error() string {
	if len(e.Sections) == 0 {
		return fmt.Sprintf("preset %q: load failed", e.Name)
	}
	parts := make([]string, len(e.Sections))
	for i, s := range e.Sections {
		parts[i] = s.Error()
	}
	return fmt.Sprintf("preset %q: load failed: %s", e.Name, strings.Join(parts, "; "))
}
