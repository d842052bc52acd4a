// Package cli maps command-line arguments onto App calls and App errors onto
// process exit codes.
package cli
