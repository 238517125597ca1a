package report

import (
	"errors"
	"strings"

	"abi/internal/analyze"
	"abi/internal/resolve"
)

// FromAnalysis converts the full analysis result into a sorted report.
func FromAnalysis(a *analyze.Analysis) *Report {
	r := New(0)
	for _, e := range a.Errors {
		r.Add(Diagnostic{
			Severity: SevError,
			Code:     validationCode(e.Kind),
			Subject:  e.Type,
			Message:  e.Error(),
		})
	}
	for _, v := range a.Violations {
		r.Add(Diagnostic{
			Severity: SevError,
			Code:     violationCode(v.Class),
			Subject:  v.Type,
			Message:  v.Class.String() + " in expression " + v.Expr + ": " + v.Reason,
			Chain:    v.Chain,
		})
	}
	for _, c := range a.Cycles {
		r.Add(Diagnostic{
			Severity: SevError,
			Code:     LayTypeCycle,
			Subject:  c.Cycle[0],
			Message:  "type dependency cycle: " + strings.Join(c.Cycle, " -> "),
			Chain:    c.Cycle,
		})
	}
	r.Sort()
	return r
}

// AddResolveError records a resolution failure, mapped onto the 3000
// code range. Unknown error values land on a generic resolution code.
func (r *Report) AddResolveError(err error) {
	var re *resolve.Error
	if !errors.As(err, &re) {
		r.Add(Diagnostic{Severity: SevError, Code: UnknownCode, Message: err.Error()})
		return
	}
	r.Add(Diagnostic{
		Severity: SevError,
		Code:     resolveCode(re.Kind),
		Subject:  re.Type,
		Message:  re.Error(),
		Chain:    re.Unresolved,
	})
}

func validationCode(k analyze.ValidationKind) Code {
	switch k {
	case analyze.DuplicateTypeName:
		return ValDuplicateType
	case analyze.DuplicateFieldName:
		return ValDuplicateField
	case analyze.DuplicateVariantName:
		return ValDuplicateVariant
	case analyze.DuplicateTagValue:
		return ValDuplicateTag
	case analyze.DuplicateExpectedSize:
		return ValDuplicateSize
	}
	return UnknownCode
}

func violationCode(c analyze.ViolationClass) Code {
	switch c {
	case analyze.ForwardDependency:
		return LayForwardDependency
	case analyze.LayoutCycle:
		return LayLayoutCycle
	case analyze.TransitiveCycle:
		return LayTransitiveCycle
	}
	return UnknownCode
}

func resolveCode(k resolve.ErrorKind) Code {
	switch k {
	case resolve.ErrUnknownType:
		return ResUnknownType
	case resolve.ErrCircular:
		return ResCircular
	case resolve.ErrForwardRef:
		return ResForwardRef
	case resolve.ErrInvalidType:
		return ResInvalidType
	case resolve.ErrFieldRefNotFound, resolve.ErrFieldRefNotPrimitive:
		return ResBadFieldRef
	case resolve.ErrNonConstantRef:
		return ResNonConstantRef
	case resolve.ErrInvalidComment:
		return ResInvalidComment
	}
	return UnknownCode
}
