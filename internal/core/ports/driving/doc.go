// Package driving declares what the core offers to its callers: the CLI
// and the MCP server call these interfaces and never reach past them.
//
// internal/core/services implements every interface here.
package driving
