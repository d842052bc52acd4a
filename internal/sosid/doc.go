/*
Package sosid provides the canonical identifier index of a continent: the
ordered, duplicate-free list of SWORD reach identifiers every module
contribution and every SoS version is aligned to.

Positions in the index are the join key for merges. A contribution that
names an identifier outside the index is an integrity failure reported as
ErrIndexMismatch and is never coerced.
*/
package sosid
