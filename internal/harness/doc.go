// Package harness runs end-to-end materialization scenarios.
//
// A scenario names a catalog, supplies records (inline or from a file),
// and lists lookups with their expected answers plus assertions over the
// stored artifacts and the run summary:
//
//	name: borough_year
//	description: BRONX 2020 aggregates two collisions
//	catalog: ../catalogs/collisions.cue
//	records:
//	  - {borough: BRONX, year: 2020, killed: 1}
//	lookups:
//	  - where: {borough: BRONX, year: 2020}
//	    expect: {rows: 1, values: {count: 1, killed: 1}}
//	assertions:
//	  - {type: artifact_count, count: 3}
//
// Each scenario runs against a fresh in-memory SQLite store with sequential
// run IDs and a stepping clock, so every run is reproducible. RunWithGolden
// snapshots all artifacts as canonical JSON for golden-file comparison.
package harness
