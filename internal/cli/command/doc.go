// Package command defines the respkv-cli application using urfave/cli/v2.
//
// With command arguments the CLI sends that single command and prints the
// reply. Without them it reads commands from standard input, one per line.
package command
