package repl

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnbalancedQuotes is returned for a line with an unterminated quote.
var ErrUnbalancedQuotes = errors.New("invalid argument(s): unbalanced quotes")

// SplitArgs splits a line into arguments. Double-quoted words support the
// escapes \n \r \t \\ \" and \xHH; single-quoted words only \'.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   byte
		escaped bool
	)

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case quote == '"':
			if escaped {
				escaped = false
				switch c {
				case 'n':
					cur.WriteByte('\n')
				case 'r':
					cur.WriteByte('\r')
				case 't':
					cur.WriteByte('\t')
				case 'x':
					if i+2 < len(line) {
						if v, err := strconv.ParseUint(line[i+1:i+3], 16, 8); err == nil {
							cur.WriteByte(byte(v))
							i += 2
							continue
						}
					}
					cur.WriteByte('x')
				default:
					cur.WriteByte(c)
				}
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				quote = 0
			default:
				cur.WriteByte(c)
			}

		case quote == '\'':
			if c == '\\' && i+1 < len(line) && line[i+1] == '\'' {
				cur.WriteByte('\'')
				i++
				continue
			}
			if c == '\'' {
				quote = 0
				continue
			}
			cur.WriteByte(c)

		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}

		case c == '"' || c == '\'':
			quote = c
			inWord = true

		default:
			cur.WriteByte(c)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, ErrUnbalancedQuotes
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
