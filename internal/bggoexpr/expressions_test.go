package bggoexpr

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/sosappend/internal/bggohcl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseTemplate(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestAnalyze(t *testing.T) {
	a := Analyze(
		parseTemplate(t, "${module}/${run_type}/${upper(continent)}.json"),
		parseTemplate(t, "${module}/x"),
		nil,
	)

	keys := make([]string, 0, len(a.References))
	for _, ref := range a.References {
		keys = append(keys, bggohcl.TraversalKey(ref))
	}
	assert.Equal(t, []string{"continent", "module", "run_type"}, keys)
	assert.Equal(t, []string{"upper"}, a.Functions)
}

func TestCheckTemplate(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		allowed []string
		errs    int
	}{
		{"literal", "index/na.json", []string{"continent"}, 0},
		{"allowed", "index/${continent}.json", []string{"continent"}, 0},
		{"unknown variable", "${module}/${continent}.json", []string{"continent"}, 1},
		{"function call", "${lower(continent)}", []string{"continent"}, 1},
		{"attribute of allowed root", "${continent.name}", []string{"continent"}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			diags := CheckTemplate(parseTemplate(t, tc.src), tc.allowed...)
			assert.Len(t, diags, tc.errs)
		})
	}
}

type keyBlock struct {
	Key hcl.Expression `hcl:"key,optional"`
}

func (k *keyBlock) Expressions() []hcl.Expression { return []hcl.Expression{k.Key} }

func parseBody(t *testing.T, src string) hcl.Blocks {
	t.Helper()
	f, diags := hclparse.NewParser().ParseHCL([]byte(src), "test.hcl")
	require.False(t, diags.HasErrors(), diags.Error())
	content, diags := f.Body.Content(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{{Type: "index"}},
	})
	require.False(t, diags.HasErrors(), diags.Error())
	return content.Blocks
}

func TestParseBlock(t *testing.T) {
	t.Run("decodes the unique block", func(t *testing.T) {
		blocks := parseBody(t, `index { key = "idx/${continent}.json" }`)
		got, exprs, diags := ParseBlock[*keyBlock](blocks, "index")
		require.False(t, diags.HasErrors(), diags.Error())
		require.NotNil(t, got)
		assert.Len(t, exprs, 1)
	})

	t.Run("missing block", func(t *testing.T) {
		got, exprs, diags := ParseBlock[*keyBlock](nil, "index")
		assert.Nil(t, got)
		assert.Nil(t, exprs)
		assert.False(t, diags.HasErrors())
	})

	t.Run("duplicate block", func(t *testing.T) {
		blocks := parseBody(t, "index {}\nindex {}\n")
		got, _, diags := ParseBlock[*keyBlock](blocks, "index")
		assert.Nil(t, got)
		assert.True(t, diags.HasErrors())
	})

	t.Run("unknown attribute", func(t *testing.T) {
		blocks := parseBody(t, `index { path = "x" }`)
		_, _, diags := ParseBlock[*keyBlock](blocks, "index")
		assert.True(t, diags.HasErrors())
	})
}
