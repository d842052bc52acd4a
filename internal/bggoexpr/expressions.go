// Package bggoexpr analyzes the HCL expressions of a job file: which
// variables and functions an expression refers to, and whether a key template
// stays within the variables it is rendered with.
package bggoexpr

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/sosappend/internal/bggohcl"
)

// Expressioner is implemented by decoded block structs that can list the
// expressions they hold.
type Expressioner interface {
	Expressions() []hcl.Expression
}

// Analysis is the sorted, de-duplicated set of references and function calls
// of a group of expressions.
type Analysis struct {
	References []hcl.Traversal
	Functions  []string
}

// Analyze walks exprs. Nil expressions are ignored.
func Analyze(exprs ...hcl.Expression) Analysis {
	traversals := make(map[string]hcl.Traversal)
	functions := make(map[string]struct{})

	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		for _, traversal := range expr.Variables() {
			traversals[bggohcl.TraversalKey(traversal)] = traversal
		}
		// Variables() does not report function calls.
		if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
			walkForFunctions(syntaxExpr, functions)
		}
	}

	keys := make([]string, 0, len(traversals))
	for k := range traversals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var a Analysis
	for _, k := range keys {
		a.References = append(a.References, traversals[k])
	}
	for f := range functions {
		a.Functions = append(a.Functions, f)
	}
	sort.Strings(a.Functions)
	return a
}

// CheckTemplate reports references to variables outside allowed and any
// function call; key templates are rendered without a function table.
func CheckTemplate(expr hcl.Expression, allowed ...string) hcl.Diagnostics {
	var diags hcl.Diagnostics
	a := Analyze(expr)
	for _, ref := range a.References {
		if slices.Contains(allowed, ref.RootName()) {
			continue
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Unknown template variable",
			Detail: fmt.Sprintf("%q is not available here. Available variables: %s.",
				bggohcl.TraversalKey(ref), strings.Join(allowed, ", ")),
			Subject: ref.SourceRange().Ptr(),
		})
	}
	for _, fn := range a.Functions {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Function calls are not supported",
			Detail:   fmt.Sprintf("Key templates cannot call %s().", fn),
			Subject:  expr.Range().Ptr(),
		})
	}
	return diags
}

// walkForFunctions recursively walks the AST, looking only for function calls.
func walkForFunctions(expr hclsyntax.Expression, functions map[string]struct{}) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		functions[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, functions)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, functions)
		walkForFunctions(e.RHS, functions)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, functions)
		walkForFunctions(e.TrueResult, functions)
		walkForFunctions(e.FalseResult, functions)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, functions)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, functions)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, functions)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, functions)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, functions)
			walkForFunctions(item.ValueExpr, functions)
		}
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, functions)
		walkForFunctions(e.Key, functions)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, functions)
	}
}

// ParseBlock finds the unique block named blockName and decodes it into a
// new T, which must be a pointer to a struct. A missing block yields the zero
// T and no diagnostics.
func ParseBlock[T Expressioner](blocks hcl.Blocks, blockName string) (T, []hcl.Expression, hcl.Diagnostics) {
	var zero T

	block, diags := bggohcl.FindUniqueBlock(blocks, blockName)
	if block == nil || diags.HasErrors() {
		return zero, nil, diags
	}

	content := reflect.New(reflect.TypeOf(zero).Elem()).Interface().(T)
	decodeDiags := gohcl.DecodeBody(block.Body, nil, content)
	diags = append(diags, decodeDiags...)
	if decodeDiags.HasErrors() {
		return zero, nil, diags
	}
	return content, content.Expressions(), diags
}
