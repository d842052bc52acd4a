// Package module defines the closed set of upstream processing stages whose
// results are appended to the SoS, the run types they execute under and the
// baseline variables each stage contributes.
//
// Stages are values of an enumerated Name rather than implementations of an
// interface: every stage produces the same Contribution shape, so adding a
// stage means adding a constant, a Schema entry and nothing else.
package module
