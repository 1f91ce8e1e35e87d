package repl

import (
	"sort"
	"strings"
)

// Completer matches command names by prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over the commands a respkv server
// understands.
func NewCompleter() *Completer {
	commands := []string{
		"PING", "ECHO", "QUIT",
		"GET", "SET", "EXISTS", "DEL", "INCR", "DECR",
		"LPUSH", "RPUSH", "LRANGE", "LLEN",
		"TTL", "PTTL", "DBSIZE", "SAVE",
	}
	sort.Strings(commands)
	return &Completer{commands: commands}
}

// Complete returns the commands starting with prefix, case-insensitively.
func (c *Completer) Complete(prefix string) []string {
	prefix = strings.ToUpper(prefix)
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
