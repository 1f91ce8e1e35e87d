// Package output renders server replies for respkv-cli.
//
// Three formats are supported:
//
//   - text: the interactive redis-cli layout, with quoted bulk strings,
//     "(integer)" and "(nil)" markers and numbered array items
//   - raw: bare values one per line, for scripting
//   - json: one JSON document per reply
package output
