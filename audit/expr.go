// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

const (
	// DefaultMaxExpressionLength is the maximum allowed length for a rule expression.
	DefaultMaxExpressionLength = 10000

	// DefaultCostLimit is the default runtime cost limit for rule evaluation.
	DefaultCostLimit = 1000000
)

// Variables available to rule expressions.
const (
	VarManifest         = "manifest"
	VarDirName          = "dir_name"
	VarFiles            = "files"
	VarSkillMDPresent   = "skill_md_present"
	VarFrontmatterValid = "frontmatter_valid"
)

// Engine compiles rule expressions against the bundle variables. It is safe
// for concurrent use.
type Engine struct {
	once sync.Once
	env  *cel.Env
	err  error

	maxExpressionLength int
	costLimit           uint64
}

// CompiledExpression is a checked program ready for evaluation.
type CompiledExpression struct {
	source  string
	program cel.Program
}

// Source returns the original expression source string.
func (ce *CompiledExpression) Source() string {
	return ce.source
}

// NewEngine returns an engine with the default limits.
func NewEngine() *Engine {
	return &Engine{
		maxExpressionLength: DefaultMaxExpressionLength,
		costLimit:           DefaultCostLimit,
	}
}

// WithCostLimit sets the runtime cost limit for evaluation.
func (e *Engine) WithCostLimit(limit uint64) *Engine {
	e.costLimit = limit
	return e
}

func (e *Engine) getEnv() (*cel.Env, error) {
	e.once.Do(func() {
		e.env, e.err = cel.NewEnv(
			cel.Variable(VarManifest, cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable(VarDirName, cel.StringType),
			cel.Variable(VarFiles, cel.ListType(cel.StringType)),
			cel.Variable(VarSkillMDPresent, cel.BoolType),
			cel.Variable(VarFrontmatterValid, cel.BoolType),
		)
	})
	return e.env, e.err
}

// Compile parses and type-checks expr, which must evaluate to a bool.
//
// Returns a ParseError for syntax errors and a CheckError for type errors.
func (e *Engine) Compile(expr string) (*CompiledExpression, error) {
	if len(expr) > e.maxExpressionLength {
		return nil, fmt.Errorf("%w: expression length %d exceeds maximum of %d",
			ErrExpressionCheck, len(expr), e.maxExpressionLength)
	}

	env, err := e.getEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to get CEL environment: %w", err)
	}

	parsedAst, issues := env.Parse(expr)
	if issues.Err() != nil {
		return nil, newParseError(expr, issues)
	}

	checkedAst, issues := env.Check(parsedAst)
	if issues.Err() != nil {
		return nil, newCheckError(expr, issues)
	}
	if !checkedAst.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("%w: expression %q yields %s, want bool",
			ErrExpressionCheck, expr, checkedAst.OutputType())
	}

	program, err := env.Program(checkedAst, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program for %q: %w", expr, err)
	}

	return &CompiledExpression{source: expr, program: program}, nil
}

// EvaluateBool runs the expression against vars.
func (ce *CompiledExpression) EvaluateBool(vars map[string]any) (bool, error) {
	out, _, err := ce.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrEvaluation, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: expected bool, got %T", ErrInvalidResult, out.Value())
	}
	return b, nil
}
