package pipeline

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Evaluator compiles and runs a conditional stage's `when` predicate against
// prior stage outputs (spec.md §4.4: "if conditional, evaluate when against
// prior stage outputs"). cel-go rides in the pack as kubernaut's transitive
// admission-webhook dependency; we promote it to a direct one here since a
// sandboxed expression language is exactly the job it is built for, and the
// alternative is a hand-rolled parser the corpus never shows.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator builds an Evaluator with two predicate variables available to
// every `when` expression: outputs (stage name -> free-text output) and
// succeeded (stage name -> whether it completed without cancellation).
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("outputs", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("succeeded", cel.MapType(cel.StringType, cel.BoolType)),
	)
	if err != nil {
		return nil, fmt.Errorf("building cel env: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Eval compiles expr against outputs/succeeded and returns its boolean
// result. A compile or evaluation error is surfaced to the caller, who
// treats it the same as a false `when` (the stage is skipped).
func (e *Evaluator) Eval(expr string, outputs map[string]string, succeeded map[string]bool) (bool, error) {
	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return false, fmt.Errorf("compiling when-expression %q: %w", expr, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("building when-program %q: %w", expr, err)
	}
	out, _, err := prg.Eval(map[string]any{
		"outputs":   outputs,
		"succeeded": succeeded,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating when-expression %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("when-expression %q did not evaluate to a bool", expr)
	}
	return b, nil
}
