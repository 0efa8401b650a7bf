// Package services provides the service registry shared by the opsagent
// front ends.
//
// The CLI, the HTTP daemon and the MCP server all process requests through
// the same Router and Store. NewRegistry bundles them with the gate, hooks
// and scrubber so each front end takes one dependency.
package services
