package policy

import (
	"github.com/google/cel-go/cel"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// lintDeterminism walks a parsed expression and collects constructs
// whose result can differ between nodes or between a run and its
// replay: floating point (platform rounding), wall-clock reads, and
// map iteration (unspecified order). A verdict that depends on any of
// them would break same-receipt-same-verdict.
func lintDeterminism(ast *cel.Ast) []string {
	var problems []string
	expr := ast.Expr() //nolint:staticcheck // no non-deprecated AST traversal API yet
	walkExpr(expr, &problems)
	return problems
}

func walkExpr(e *exprpb.Expr, problems *[]string) {
	if e == nil {
		return
	}

	switch k := e.ExprKind.(type) {
	case *exprpb.Expr_ConstExpr:
		if _, ok := k.ConstExpr.ConstantKind.(*exprpb.Constant_DoubleValue); ok {
			*problems = append(*problems, "floating point literals are forbidden")
		}

	case *exprpb.Expr_CallExpr:
		call := k.CallExpr
		switch call.Function {
		case "now":
			*problems = append(*problems, "now() is forbidden")
		case "double":
			*problems = append(*problems, "floating point conversion is forbidden")
		case "keys", "values":
			*problems = append(*problems, "map iteration (keys/values) is forbidden")
		}
		if call.Target != nil {
			walkExpr(call.Target, problems)
		}
		for _, arg := range call.Args {
			walkExpr(arg, problems)
		}

	case *exprpb.Expr_SelectExpr:
		walkExpr(k.SelectExpr.Operand, problems)

	case *exprpb.Expr_ListExpr:
		for _, el := range k.ListExpr.Elements {
			walkExpr(el, problems)
		}

	case *exprpb.Expr_StructExpr:
		for _, entry := range k.StructExpr.Entries {
			if key := entry.GetMapKey(); key != nil {
				walkExpr(key, problems)
			}
			walkExpr(entry.Value, problems)
		}

	case *exprpb.Expr_ComprehensionExpr:
		comp := k.ComprehensionExpr
		walkExpr(comp.IterRange, problems)
		walkExpr(comp.AccuInit, problems)
		walkExpr(comp.LoopCondition, problems)
		walkExpr(comp.LoopStep, problems)
		walkExpr(comp.Result, problems)
	}
}
