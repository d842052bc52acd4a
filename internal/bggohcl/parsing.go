// Package bggohcl holds small helpers over hcl/v2 block handling shared by
// the job file loader.
package bggohcl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// FindUniqueBlock searches a slice of blocks for all blocks of a given name.
// It returns a diagnostic error if more than one block of that name is found.
// If no block is found, it returns nil.
func FindUniqueBlock(blocks hcl.Blocks, name string) (*hcl.Block, hcl.Diagnostics) {
	var found *hcl.Block
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if block.Type != name {
			continue
		}
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"" + name + "\" block",
				Detail:   "Only one \"" + name + "\" block is allowed.",
				Subject:  &block.DefRange,
			})
			continue
		}
		found = block
	}

	return found, diags
}

// KindLabel returns the single label of block, which must be one of kinds.
func KindLabel(block *hcl.Block, kinds ...string) (string, hcl.Diagnostics) {
	if len(block.Labels) != 1 {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Missing \"" + block.Type + "\" kind",
			Detail:   fmt.Sprintf("A %s block takes exactly one label naming its kind: %s.", block.Type, strings.Join(kinds, ", ")),
			Subject:  &block.DefRange,
		}}
	}
	kind := block.Labels[0]
	if !slices.Contains(kinds, kind) {
		return "", hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported \"" + block.Type + "\" kind",
			Detail:   fmt.Sprintf("%q is not one of: %s.", kind, strings.Join(kinds, ", ")),
			Subject:  block.LabelRanges[0].Ptr(),
		}}
	}
	return kind, nil
}
