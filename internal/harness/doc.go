// Package harness runs scenario files against an in-process cluster of
// partitions.
//
// Each scenario starts one node per listed partition, all joined by an
// rpc.Mesh, each with its own SQLite store in a fresh data directory. Steps
// call real module functions, so a scenario exercises the same record, index
// and capability code a served partition runs.
//
// # Scenario Format
//
//	name: conforming_resources
//	description: "Resources are indexed on their specification partition"
//	partitions:
//	  - partition: specification
//	    grants:
//	      - id: resource-index
//	        secret: s3cret
//	        functions: [index.update]
//	  - partition: observation
//	    claims:
//	      - partition: specification
//	        permission: index_resource_specification_conforming_resources
//	        grantor: specification
//	        secret: s3cret
//	        module: index
//	        function: update
//	steps:
//	  - partition: observation
//	    call: economic_resource.create
//	    payload:
//	      resource: { name: apple, conformsTo: "@spec:apples" }
//	    save:
//	      apple: economicResource.id
//	  - disconnect: specification
//	  - from: observation
//	    partition: specification
//	    permission: index_resource_specification_conforming_resources
//	    payload: {}
//	    expect:
//	      outcome: network_error
//	assertions:
//	  - type: index_targets
//	    partition: specification
//	    base: "@spec:apples"
//	    relation: conforming_resources
//	    targets: [$apple]
//
// A step either calls a module of partition directly, calls partition from
// another partition through a stored claim (from and permission), or cuts a
// partition off the mesh (disconnect, reconnect).
//
// Strings in payloads, expectations and assertions are substituted before
// use: "$name" is a value saved by an earlier step and "@name" is the anchor
// address of name.
//
// # Assertion Types
//
//   - trace_contains: a call appears in the trace, optionally on a partition
//     and with an outcome
//   - trace_order: calls appear in the given order
//   - trace_count: a call appears exactly N times
//   - index_targets: an index read on a partition returns exactly the targets
//
// # Deterministic Traces
//
// Identities are content hashes and every partition clock starts at zero, so
// a scenario produces the same records on every run. Traces record calls and
// outcomes only, which keeps golden files readable.
package harness
