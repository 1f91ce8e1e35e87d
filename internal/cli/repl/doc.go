// Package repl provides the interactive mode of respkv-cli.
//
// Lines read from the input are split into arguments, with double and
// single quotes grouping words, and handed to an executor. "exit" and
// "quit" leave the loop; "help [prefix]" lists known commands. History is
// kept in memory and optionally persisted to a file.
package repl
