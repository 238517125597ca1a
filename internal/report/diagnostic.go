// Package report collects schema diagnostics: duplicate-name
// validation errors, layout violations and resolution failures, each
// with a numbered code and the dependency chain when one exists. The
// collector is best-effort: analysis keeps going after the first
// error so one pass reports everything.
package report

import "fmt"

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Code numbers every diagnostic. 1000s are declaration validation,
// 2000s layout violations, 3000s resolution failures.
type Code uint16

const (
	UnknownCode Code = 0

	ValDuplicateType    Code = 1001
	ValDuplicateField   Code = 1002
	ValDuplicateVariant Code = 1003
	ValDuplicateTag     Code = 1004
	ValDuplicateSize    Code = 1005

	LayForwardDependency Code = 2001
	LayLayoutCycle       Code = 2002
	LayTransitiveCycle   Code = 2003
	LayTypeCycle         Code = 2004

	ResUnknownType    Code = 3001
	ResCircular       Code = 3002
	ResForwardRef     Code = 3003
	ResInvalidType    Code = 3004
	ResBadFieldRef    Code = 3005
	ResNonConstantRef Code = 3006
	ResInvalidComment Code = 3007
)

func (c Code) String() string {
	return fmt.Sprintf("ABI%04d", uint16(c))
}

// Diagnostic is one reported problem. Subject names the offending
// type; Chain carries the dependency path for cycle-class codes.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Subject  string
	Message  string
	Chain    []string
}
