// Package sos holds the in-memory model of a State of Science aggregate: one
// continent and run type, one variable group per upstream stage, every group
// aligned to the continent's identifier index.
//
// # Versions
//
// Version 0 is the empty aggregate returned by Empty. Every later version is
// produced by CloneForNextVersion followed by SetGroup calls on the private
// copy; committed aggregates are never edited in place.
//
// # Missing values
//
// A Value with Set == false is the explicit missing marker. The fill
// sentinels written by upstream stages (see Fill) and NaN are normalized to
// missing on input, so the model never stores a sentinel as data.
package sos
