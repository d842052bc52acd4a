package bggohcl

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocks(t *testing.T, src string) hcl.Blocks {
	t.Helper()
	f, diags := hclparse.NewParser().ParseHCL([]byte(src), "test.hcl")
	require.False(t, diags.HasErrors(), diags.Error())
	content, _, diags := f.Body.PartialContent(&hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "commit"},
			{Type: "store", LabelNames: []string{"kind"}},
		},
	})
	require.False(t, diags.HasErrors(), diags.Error())
	return content.Blocks
}

func TestFindUniqueBlock(t *testing.T) {
	found, diags := FindUniqueBlock(blocks(t, "commit {}"), "commit")
	assert.NotNil(t, found)
	assert.False(t, diags.HasErrors())

	found, diags = FindUniqueBlock(blocks(t, `store "s3" {}`), "commit")
	assert.Nil(t, found)
	assert.Empty(t, diags)

	found, diags = FindUniqueBlock(blocks(t, "commit {}\ncommit {}\ncommit {}\n"), "commit")
	assert.NotNil(t, found)
	assert.Len(t, diags, 2)
}

func TestKindLabel(t *testing.T) {
	b := blocks(t, `store "s3" {}`)[0]
	kind, diags := KindLabel(b, "memory", "s3")
	assert.False(t, diags.HasErrors())
	assert.Equal(t, "s3", kind)

	_, diags = KindLabel(b, "memory", "bolt")
	assert.True(t, diags.HasErrors())

	_, diags = KindLabel(&hcl.Block{Type: "store"}, "memory")
	assert.True(t, diags.HasErrors())
}

func TestTraversalKey(t *testing.T) {
	expr, diags := hclparse.NewParser().ParseHCL([]byte("a = var.region"), "t.hcl")
	require.False(t, diags.HasErrors())
	attrs, _ := expr.Body.JustAttributes()
	vars := attrs["a"].Expr.Variables()
	require.Len(t, vars, 1)
	assert.Equal(t, "var.region", TraversalKey(vars[0]))
}
