package compoundfiles

import (
	"errors"
	"fmt"
)

// Fatal conditions. These abort the current operation and are returned,
// wrapped, from the container API boundary.
var (
	ErrorInvalidCFB = errors.New("invalid cfb file")

	ErrHeader       = errors.New("cfb: header error")
	ErrInvalidMagic = errors.New("cfb: invalid magic number")
	ErrInvalidBom   = errors.New("cfb: not a little-endian file")

	ErrMasterFat      = errors.New("cfb: master FAT error")
	ErrNormalFat      = errors.New("cfb: FAT error")
	ErrMiniFat        = errors.New("cfb: mini FAT error")
	ErrLargeNormalFat = errors.New("cfb: FAT entry out of range")
	ErrLargeMiniFat   = errors.New("cfb: mini FAT entry out of range")
	ErrNoMiniFat      = errors.New("cfb: no mini FAT present")
	ErrMasterLoop     = errors.New("cfb: cycle in master FAT chain")
	ErrNormalLoop     = errors.New("cfb: cycle in FAT chain")
	ErrDirLoop        = errors.New("cfb: cycle in directory hierarchy")

	ErrDirEntry   = errors.New("cfb: invalid directory entry")
	ErrNotFound   = errors.New("cfb: not found")
	ErrNotStream  = errors.New("cfb: not a stream")
	ErrNotStorage = errors.New("cfb: not a storage")
	ErrExists     = errors.New("cfb: name already exists")
	ErrReadOnly   = errors.New("cfb: container is read-only")
	ErrClosed     = errors.New("cfb: container is closed")
)

// WarningCode identifies a class of recoverable diagnostics. Warnings are
// pushed to the Sink and never alter control flow by themselves.
type WarningCode int

const (
	HeaderWarning WarningCode = iota
	SectorSizeWarning
	VersionWarning
	MasterFatWarning
	NormalFatWarning
	MiniFatWarning
	MasterSectorWarning
	NormalSectorWarning
	DirEntryWarning
	DirNameWarning
	DirTypeWarning
	DirIndexWarning
	DirTimeWarning
	DirSectorWarning
	DirSizeWarning
	TruncatedWarning
	EmulationWarning
)

var warningNames = map[WarningCode]string{
	HeaderWarning:       "HeaderWarning",
	SectorSizeWarning:   "SectorSizeWarning",
	VersionWarning:      "VersionWarning",
	MasterFatWarning:    "MasterFatWarning",
	NormalFatWarning:    "NormalFatWarning",
	MiniFatWarning:      "MiniFatWarning",
	MasterSectorWarning: "MasterSectorWarning",
	NormalSectorWarning: "NormalSectorWarning",
	DirEntryWarning:     "DirEntryWarning",
	DirNameWarning:      "DirNameWarning",
	DirTypeWarning:      "DirTypeWarning",
	DirIndexWarning:     "DirIndexWarning",
	DirTimeWarning:      "DirTimeWarning",
	DirSectorWarning:    "DirSectorWarning",
	DirSizeWarning:      "DirSizeWarning",
	TruncatedWarning:    "TruncatedWarning",
	EmulationWarning:    "EmulationWarning",
}

func (c WarningCode) String() string {
	if s, ok := warningNames[c]; ok {
		return s
	}
	return fmt.Sprintf("WarningCode(%d)", int(c))
}

// Warning is a recoverable diagnostic: a non-conforming value that was
// substituted or ignored while processing continued.
type Warning struct {
	Code   WarningCode
	Detail string
}

func (w Warning) String() string {
	return fmt.Sprintf("%v: %s", w.Code, w.Detail)
}

// Sink receives recoverable diagnostics. Returning a non-nil error from
// Warn escalates the condition: the operation that raised it fails with
// that error. The default sinks never escalate.
type Sink interface {
	Warn(w Warning) error
}

// CollectSink records every warning it receives.
type CollectSink struct {
	Warnings []Warning
}

func (s *CollectSink) Warn(w Warning) error {
	s.Warnings = append(s.Warnings, w)
	return nil
}

// Has reports whether any collected warning carries the given code.
func (s *CollectSink) Has(code WarningCode) bool {
	for _, w := range s.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// DiscardSink drops all warnings.
type DiscardSink struct{}

func (DiscardSink) Warn(Warning) error { return nil }

// EscalateSink promotes selected warning classes to fatal errors and
// forwards everything else to the next sink.
type EscalateSink struct {
	Codes map[WarningCode]bool
	Next  Sink
}

func (s *EscalateSink) Warn(w Warning) error {
	if s.Codes[w.Code] {
		return fmt.Errorf("%v escalated: %s: %w", w.Code, w.Detail, ErrorInvalidCFB)
	}
	if s.Next != nil {
		return s.Next.Warn(w)
	}
	return nil
}

func warnf(sink Sink, code WarningCode, format string, args ...interface{}) error {
	if sink == nil {
		return nil
	}
	return sink.Warn(Warning{Code: code, Detail: fmt.Sprintf(format, args...)})
}
