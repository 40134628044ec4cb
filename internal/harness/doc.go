// Package harness runs pipeline conformance scenarios.
//
// A scenario names a generator in a .cue pipeline file, the data to invoke
// it with and what the outputs must hold. Run builds, compiles and invokes
// the pipeline, recording the artifact and the run in a fresh in-memory
// registry, and returns a Result.
//
// # Scenario Format
//
//	name: blur_ramp
//	description: "Blur of a ramp is linear"
//	pipeline: ../pipelines/blur.cue
//	generator: blur
//	set: { vectorize: false }
//	params: { scale: "3" }
//	inputs:
//	  src:
//	    ramp: { base: 0, step: [1] }
//	expect:
//	  outputs:
//	    out:
//	      points:
//	        - at: [0]
//	          value: 8
//	golden: true
//
// Inputs are filled with a constant (fill) or a linear ramp (ramp). Their
// region defaults to the region the pipeline reads; extent and min override
// it. An expectation is either a set of output checks (all, points with an
// optional tolerance) or an error kind from the ir taxonomy:
//
//	expect:
//	  error: CYCLIC_DEPENDENCY
//
// # Determinism
//
// Runs use a deterministic logical clock for registry sequence numbers and
// run IDs of the form "<name>-run-N", so repeated runs of a scenario record
// identical rows. Logs are discarded.
//
// CheckInvariance reruns a scenario under every combination of its
// generator params and requires bit-identical outputs.
package harness
