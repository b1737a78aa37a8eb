// Package mcp exposes the engine as a Model Context Protocol server with the
// tools chat, history and reflect, and the resource mindgraph://threads.
package mcp
