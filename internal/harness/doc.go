// Package harness runs end-to-end scenarios against a fresh store.
//
// A scenario is a YAML file that ingests candidate atoms, runs dedup and
// metadata aggregation in order, and then asserts on what the store holds.
// Each step's outcome is recorded in a trace so whole runs can be compared
// against golden files.
//
// # Scenario Format
//
//	name: dedup_then_aggregate
//	description: "Duplicates are removed before aggregation"
//	pipeline: ../pipeline.yaml   # optional, relative to the scenario file
//	steps:
//	  - op: ingest
//	    kind: raw
//	    values:
//	      - { ticker: AAPL, date: "2024-01-02", close: 185.64 }
//	    expect: { admitted: 1 }
//	  - op: dedup
//	    expect: { deleted: 0, committed: true }
//	  - op: aggregate
//	    workers: 2
//	assertions:
//	  - type: atom_count
//	    kind: raw
//	    count: 1
//	  - type: canonical
//	    ticker: AAPL
//	    expect: { name: Apple }
//
// Step expect clauses and canonical assertions use subset semantics: only
// the listed keys are compared, by canonical JSON equality.
//
// # Assertion Types
//
//   - trace_order: steps of the listed ops appear in that order
//   - trace_count: an op ran exactly count times
//   - atom_count: the raw table holds count atoms of kind (all kinds if empty)
//   - distinct_count: the raw table holds count distinct values
//   - canonical: the ticker's canonical record matches expect, or is absent
//   - tickers: the set of canonical tickers, sorted
//
// # Determinism
//
// Every scenario runs against an in-memory SQLite store. Run ids and
// canonical record ids are left out of the trace and the golden snapshot,
// since they depend on time and worker scheduling.
package harness
