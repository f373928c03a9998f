// Package metadata reduces metadata atoms into one canonical record per
// ticker.
//
// An Aggregator run fetches every metadata atom, groups the atoms by their
// ticker field, merges each group with Merge and upserts the result into
// the canonical metadata table. Tickers are independent: a failed upsert is
// reported in the Report and never stops the others. Atoms without a
// usable ticker are reported as malformed and left out.
package metadata
