// Package layout resolves schema types to native memory layouts: sizes,
// alignments, and record field offsets, including explicit per-platform
// padding overrides. It is a pure function of the declared schema; no data
// is touched here.
package layout
