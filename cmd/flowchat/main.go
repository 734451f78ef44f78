// Command flowchat runs link-in-bio conversation flows in a terminal, over
// HTTP, or as MCP tools.
package main

func main() {
	Execute()
}
