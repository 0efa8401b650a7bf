// Package secrets redacts credentials from workflow output before it is
// printed, returned over HTTP or MCP, or published as an audit event.
//
// Rules are regular expressions tuned for the text DevOps tools emit:
// kubeconfig and bearer tokens, cloud access keys, registry auths,
// connection strings and private keys. An optional TOML allowlist exempts
// known-safe matches.
package secrets
