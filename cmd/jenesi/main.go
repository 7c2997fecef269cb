// Command jenesi is the JENESI Autobot conversation client.
//
// Usage:
//
//	jenesi [--config file] [--log-level level] <command>
//
// Commands:
//
//	serve   - HTTP and WebSocket API
//	chat    - interactive terminal chat
//	mcp     - MCP tools over stdio
//	video   - generate a video from a prompt
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
