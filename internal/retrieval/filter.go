package retrieval

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/heron/internal/domain"
)

// Filter is a compiled CEL predicate deciding whether a transaction may be
// offered as a candidate. Variables: txn and alert (maps with id, amount,
// currency, reference, bank_code and account_last4; txn adds source) and
// hours_apart.
type Filter struct {
	expr    string
	program cel.Program
}

// NewFilter compiles expr. An empty expression yields a nil filter, which
// allows everything.
func NewFilter(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("txn", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("alert", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("hours_apart", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ConfigurationError{Field: "candidate_filter", Reason: issues.Err().Error()}
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, &domain.ConfigurationError{
			Field:  "candidate_filter",
			Reason: fmt.Sprintf("must return bool, got %s", ast.OutputType()),
		}
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for candidate filter: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// Expression returns the source expression.
func (f *Filter) Expression() string {
	return f.expr
}

// Allow evaluates the predicate for one candidate.
func (f *Filter) Allow(alert *domain.Alert, txn *domain.Transaction) (bool, error) {
	if f == nil {
		return true, nil
	}

	gap := alert.Timestamp.Sub(txn.Timestamp).Hours()
	if gap < 0 {
		gap = -gap
	}

	txnVars := recordVars(txn.Record)
	txnVars["source"] = txn.Source

	out, _, err := f.program.Eval(map[string]any{
		"txn":         txnVars,
		"alert":       recordVars(alert.Record),
		"hours_apart": gap,
	})
	if err != nil {
		return false, fmt.Errorf("candidate filter: %w", err)
	}

	allowed, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("candidate filter returned %s", out.Type())
	}
	return bool(allowed), nil
}

func recordVars(r domain.Record) map[string]any {
	amount, _ := r.Amount.Float64()
	return map[string]any{
		"id":            r.ID,
		"amount":        amount,
		"currency":      r.Currency,
		"reference":     r.Reference.Raw,
		"bank_code":     r.BankCode,
		"account_last4": r.AccountLast4,
	}
}
