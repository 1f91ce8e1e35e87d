// Package main provides the entry point for respkv-cli.
//
// Usage:
//
//	respkv-cli [--host 127.0.0.1] [-p 6379] SET greeting hello
//	respkv-cli -o raw LRANGE queue 0 -1
//	echo "INCR hits" | respkv-cli
//
// Without a command the CLI reads commands from standard input, one per
// line, and prints a prompt when standard input is a terminal.
package main
