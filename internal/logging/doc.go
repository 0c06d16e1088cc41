// Package logging builds the zap loggers used by shardex commands.
//
// Logs always go to stderr so that the MCP server can own stdout. The level
// comes from the config file or SHARDEX_LOG_LEVEL, and --verbose forces debug.
package logging
