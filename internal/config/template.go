package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Template is a blob key pattern such as "${module}/${continent}.json".
type Template struct {
	expr hcl.Expression
}

// ParseTemplate parses src as an HCL template.
func ParseTemplate(src string) (Template, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return Template{}, fmt.Errorf("parse template %q: %w", src, diags)
	}
	return Template{expr: expr}, nil
}

// MustTemplate is ParseTemplate for known-good literals.
func MustTemplate(src string) Template {
	t, err := ParseTemplate(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Render evaluates the template with vars bound as top-level variables.
func (t Template) Render(vars map[string]string) (string, error) {
	if t.expr == nil {
		return "", fmt.Errorf("render: empty template")
	}
	values := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		values[k] = cty.StringVal(v)
	}
	val, diags := t.expr.Value(&hcl.EvalContext{Variables: values})
	if diags.HasErrors() {
		return "", fmt.Errorf("render: %w", diags)
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("render: template produced no value")
	}
	return val.AsString(), nil
}

// isAbsent reports whether expr is the placeholder gohcl sets for an omitted
// optional attribute.
func isAbsent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}
	if len(expr.Variables()) > 0 {
		return false
	}
	val, diags := expr.Value(nil)
	return !diags.HasErrors() && val.IsNull()
}
