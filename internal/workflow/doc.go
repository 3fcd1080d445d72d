// Package workflow defines the typed schema for automation workflow
// documents and loads them from YAML.
//
// A workflow is an ordered list of steps, each pairing an element selector
// (how to find the target on screen) with an action (what to do to it),
// plus per-step timing, verification conditions and optional sideload
// scripts. Documents are parsed in a single pass and validated entirely at
// load time: Parse surfaces every schema violation it finds, not just the
// first, so a broken document never fails mid-run.
//
// The package is consumed read-only by the orchestrator. Workflows are
// immutable once loaded.
package workflow
