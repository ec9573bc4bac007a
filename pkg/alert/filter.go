package alert

import (
	"github.com/google/cel-go/cel"

	"github.com/codeready-toolchain/sentinel/pkg/errs"
)

// filterEnv is the shared CEL environment for rule filter expressions
// (§4.8 "filters are arbitrary boolean expressions over the evaluation
// context"). Variables exposed: system_id, criterion, value, state.
var filterEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("system_id", cel.StringType),
		cel.Variable("criterion", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("state", cel.StringType),
	)
	if err != nil {
		panic("alert: building CEL environment: " + err.Error())
	}
	return env
}()

// CompiledFilter is a parsed, reusable CEL filter program.
type CompiledFilter struct {
	program cel.Program
}

// CompileFilter parses and checks a CEL filter expression. An empty
// expression always evaluates true.
func CompileFilter(expr string) (*CompiledFilter, error) {
	if expr == "" {
		return nil, nil
	}
	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errs.Wrap(errs.ErrInvariant, "compile alert filter", issues.Err())
	}
	prg, err := filterEnv.Program(ast)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvariant, "build alert filter program", err)
	}
	return &CompiledFilter{program: prg}, nil
}

// Eval runs the filter against one criterion's evaluation context. A
// nil CompiledFilter (no filter configured) always passes.
func (f *CompiledFilter) Eval(systemID, criterionSlug string, value float64, state string) (bool, error) {
	if f == nil {
		return true, nil
	}
	out, _, err := f.program.Eval(map[string]any{
		"system_id": systemID,
		"criterion": criterionSlug,
		"value":     value,
		"state":     state,
	})
	if err != nil {
		return false, errs.Wrap(errs.ErrInvariant, "eval alert filter", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, errs.Wrap(errs.ErrInvariant, "alert filter must return bool", errs.NewInvariant("alert", "non-bool filter result"))
	}
	return b, nil
}
