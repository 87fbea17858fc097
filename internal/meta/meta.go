// Package meta holds build metadata shared by the CLI commands.
package meta

// Version is the gosfmcp release version. Overridden at build time via
// -ldflags "-X github.com/rickchristie/snowflake-mcp/internal/meta.Version=...".
var Version = "dev"
