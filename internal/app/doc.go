// Package app wires the job configuration, the blob stores and the version
// manager into append passes. It is decoupled from any entrypoint; the CLI
// only builds a Config and calls App methods.
package app
