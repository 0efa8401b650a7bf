// Package mcp exposes the request pipeline as MCP tools over stdio.
//
// A server owns one session for its lifetime, so follow-up requests such
// as "scale it to 5" resolve against what earlier requests established.
// Tool output is scrubbed for secrets by the router before it is returned.
package mcp
