package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/respkv/internal/cli/connection"
)

// Format represents the output format.
type Format string

const (
	FormatText Format = "text"
	FormatRaw  Format = "raw"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatRaw, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, raw or json)", s)
}

// Formatter writes one reply.
type Formatter interface {
	Format(w io.Writer, reply any) error
}

// NewFormatter creates a formatter for the given format. Unknown formats
// fall back to text.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatRaw:
		return &RawFormatter{}
	default:
		return &TextFormatter{}
	}
}

// TextFormatter renders replies the way redis-cli does on a terminal.
type TextFormatter struct{}

// Format writes reply followed by a newline.
func (f *TextFormatter) Format(w io.Writer, reply any) error {
	_, err := io.WriteString(w, strings.Join(textLines(reply), "\n")+"\n")
	return err
}

func textLines(reply any) []string {
	switch v := reply.(type) {
	case nil:
		return []string{"(nil)"}
	case connection.Status:
		return []string{string(v)}
	case *connection.ReplyError:
		return []string{"(error) " + v.Message}
	case string:
		return []string{Quote(v)}
	case int64:
		return []string{"(integer) " + strconv.FormatInt(v, 10)}
	case []any:
		if len(v) == 0 {
			return []string{"(empty array)"}
		}
		width := len(strconv.Itoa(len(v)))
		var lines []string
		for i, item := range v {
			label := fmt.Sprintf("%*d) ", width, i+1)
			pad := strings.Repeat(" ", len(label))
			for j, line := range textLines(item) {
				if j == 0 {
					lines = append(lines, label+line)
				} else {
					lines = append(lines, pad+line)
				}
			}
		}
		return lines
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Quote renders s as a double-quoted string, escaping control and
// non-ASCII bytes as \xHH.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\a':
			b.WriteString(`\a`)
		case '\b':
			b.WriteString(`\b`)
		default:
			if c >= 0x20 && c < 0x7f {
				b.WriteByte(c)
			} else {
				fmt.Fprintf(&b, `\x%02x`, c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// RawFormatter writes bare values, one per line. Arrays are flattened.
type RawFormatter struct{}

// Format writes reply.
func (f *RawFormatter) Format(w io.Writer, reply any) error {
	var b strings.Builder
	writeRaw(&b, reply)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeRaw(b *strings.Builder, reply any) {
	switch v := reply.(type) {
	case nil:
		b.WriteByte('\n')
	case *connection.ReplyError:
		b.WriteString(v.Message)
		b.WriteByte('\n')
	case []any:
		for _, item := range v {
			writeRaw(b, item)
		}
	default:
		fmt.Fprintln(b, v)
	}
}
