// Package statediff encodes compact diffs between successive snapshots of
// shell state.
//
// Two codecs are provided:
//   - LineDiff: line-oriented diff of text (aliases, functions)
//   - MapDiff: key/value diff of variable maps
//
// Both are versioned binary formats. Decoding and applying either never
// returns a partially applied result; any inconsistency is a DecodeError.
//
// Example Usage:
//
//	diffBytes := statediff.MakeLineDiff(oldText, newText)
//	newText, err := statediff.ApplyLineDiff(oldText, diffBytes)
package statediff
