package redisserver

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/yndnr/respkv/internal/core/domain"
)

// Protocol limits.
const (
	// MaxArrayLen limits the number of elements in a RESP array.
	MaxArrayLen = 1 << 20

	// MaxBulkLen limits the size of a single bulk string (512MB).
	MaxBulkLen = 512 << 20

	// maxHeaderLen bounds a "*<n>" or "$<n>" line, CRLF excluded.
	maxHeaderLen = 64
)

var (
	// ErrIncomplete means the buffer does not hold a whole frame yet.
	// Nothing was consumed; retry once more bytes arrive.
	ErrIncomplete = errors.New("resp: incomplete frame")

	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// ReplyKind identifies the RESP type of a Reply.
type ReplyKind uint8

const (
	ReplySimple ReplyKind = iota + 1
	ReplyError
	ReplyInteger
	ReplyBulk
	ReplyNullBulk
	ReplyArray
	ReplyNullArray
)

// Reply is a command result ready for encoding.
type Reply struct {
	Kind  ReplyKind
	Str   []byte
	Int   int64
	Elems []Reply
}

// SimpleString returns a "+" status reply.
func SimpleString(s string) Reply {
	return Reply{Kind: ReplySimple, Str: []byte(s)}
}

// ErrorReply returns a "-" reply carrying the error text. Wrapped command
// errors are unwrapped so the reply starts with their prefix; anything else
// is reported under ERR.
func ErrorReply(err error) Reply {
	return Reply{Kind: ReplyError, Str: []byte(domain.AsCommandError(err).Error())}
}

// Integer returns a ":" reply.
func Integer(n int64) Reply {
	return Reply{Kind: ReplyInteger, Int: n}
}

// Bulk returns a "$" reply. A nil slice encodes as the null bulk string.
func Bulk(b []byte) Reply {
	if b == nil {
		return NullBulk()
	}
	return Reply{Kind: ReplyBulk, Str: b}
}

// NullBulk returns "$-1".
func NullBulk() Reply {
	return Reply{Kind: ReplyNullBulk}
}

// Array returns a "*" reply of the given elements.
func Array(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{Kind: ReplyArray, Elems: elems}
}

// BulkArray returns an array of bulk strings. A nil slice encodes as the
// null array.
func BulkArray(items [][]byte) Reply {
	if items == nil {
		return NullArray()
	}
	elems := make([]Reply, len(items))
	for i, it := range items {
		elems[i] = Bulk(it)
	}
	return Reply{Kind: ReplyArray, Elems: elems}
}

// NullArray returns "*-1".
func NullArray() Reply {
	return Reply{Kind: ReplyNullArray}
}

var (
	replyOK   = SimpleString("OK")
	replyPong = SimpleString("PONG")
)

// IsError reports whether r is an error reply.
func (r Reply) IsError() bool {
	return r.Kind == ReplyError
}

// ============================================================================
// Encoding
// ============================================================================

// AppendReply appends the wire encoding of r to dst.
func AppendReply(dst []byte, r Reply) []byte {
	switch r.Kind {
	case ReplySimple:
		dst = append(dst, '+')
		dst = appendLineSafe(dst, r.Str)
		return append(dst, '\r', '\n')
	case ReplyError:
		dst = append(dst, '-')
		dst = appendLineSafe(dst, r.Str)
		return append(dst, '\r', '\n')
	case ReplyInteger:
		dst = append(dst, ':')
		dst = strconv.AppendInt(dst, r.Int, 10)
		return append(dst, '\r', '\n')
	case ReplyBulk:
		return appendBulk(dst, r.Str)
	case ReplyNullBulk:
		return append(dst, "$-1\r\n"...)
	case ReplyArray:
		dst = append(dst, '*')
		dst = strconv.AppendInt(dst, int64(len(r.Elems)), 10)
		dst = append(dst, '\r', '\n')
		for _, e := range r.Elems {
			dst = AppendReply(dst, e)
		}
		return dst
	case ReplyNullArray:
		return append(dst, "*-1\r\n"...)
	default:
		return append(dst, "-ERR invalid reply\r\n"...)
	}
}

// AppendCommand appends args encoded as an array of bulk strings.
func AppendCommand(dst []byte, args ...[]byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, '\r', '\n')
	for _, a := range args {
		if a == nil {
			dst = append(dst, "$-1\r\n"...)
			continue
		}
		dst = appendBulk(dst, a)
	}
	return dst
}

func appendBulk(dst, b []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

// appendLineSafe copies s, replacing CR and LF which would break framing.
func appendLineSafe(dst, s []byte) []byte {
	for _, c := range s {
		if c == '\r' || c == '\n' {
			c = ' '
		}
		dst = append(dst, c)
	}
	return dst
}

// ============================================================================
// Decoding
// ============================================================================

// DecodeCommand decodes one command frame from the start of buf.
//
// It returns the arguments and the number of bytes consumed. When buf
// holds only part of a frame it returns ErrIncomplete and consumes nothing.
// A malformed frame returns an error wrapping ErrProtocol or
// ErrLimitExceeded; the connection cannot be resynchronised after that.
//
// Empty arrays ("*0" and "*-1") are consumed and return nil args. A null
// bulk argument decodes as a nil slice. Returned slices never alias buf.
func DecodeCommand(buf []byte) (args [][]byte, n int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != '*' {
		return nil, 0, fmt.Errorf("%w: expected '*', got %q", ErrProtocol, buf[0])
	}

	count, pos, err := readLength(buf, 0)
	if err != nil {
		return nil, 0, err
	}
	if count == -1 || count == 0 {
		return nil, pos, nil
	}
	if count < -1 {
		return nil, 0, fmt.Errorf("%w: invalid array length", ErrProtocol)
	}
	if count > MaxArrayLen {
		return nil, 0, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, count, MaxArrayLen)
	}

	args = make([][]byte, 0, min(count, 64))
	for i := int64(0); i < count; i++ {
		if pos >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[pos] != '$' {
			return nil, 0, fmt.Errorf("%w: expected '$', got %q", ErrProtocol, buf[pos])
		}

		size, next, err := readLength(buf, pos)
		if err != nil {
			return nil, 0, err
		}
		if size == -1 {
			args = append(args, nil)
			pos = next
			continue
		}
		if size < -1 {
			return nil, 0, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		if size > MaxBulkLen {
			return nil, 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, size, MaxBulkLen)
		}

		end := next + int(size)
		if end+2 > len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		args = append(args, bytes.Clone(buf[next:end]))
		pos = end + 2
	}
	return args, pos, nil
}

// readLength parses the "<prefix><int>\r\n" header starting at buf[start]
// and returns the integer and the offset just past the CRLF.
func readLength(buf []byte, start int) (int64, int, error) {
	line, next, err := readLine(buf, start)
	if err != nil {
		return 0, 0, err
	}
	n, ok := parseLength(line[1:])
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[1:])
	}
	return n, next, nil
}

// readLine returns the line starting at buf[start] without its CRLF.
func readLine(buf []byte, start int) ([]byte, int, error) {
	rest := buf[start:]
	limit := min(len(rest), maxHeaderLen+2)
	i := bytes.IndexByte(rest[:limit], '\n')
	if i < 0 {
		if len(rest) >= maxHeaderLen+2 {
			return nil, 0, fmt.Errorf("%w: header line too long", ErrProtocol)
		}
		return nil, 0, ErrIncomplete
	}
	if i < 2 || rest[i-1] != '\r' {
		return nil, 0, fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return rest[:i-1], start + i + 1, nil
}

// parseLength accepts an optional minus sign followed by decimal digits.
func parseLength(b []byte) (int64, bool) {
	neg := false
	if len(b) > 0 && b[0] == '-' {
		neg = true
		b = b[1:]
	}
	// 18 digits cannot overflow int64.
	if len(b) == 0 || len(b) > 18 {
		return 0, false
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// DecodeReply decodes one reply frame from the start of buf, with the same
// incremental contract as DecodeCommand. It is the client half of the codec.
func DecodeReply(buf []byte) (Reply, int, error) {
	if len(buf) == 0 {
		return Reply{}, 0, ErrIncomplete
	}

	switch buf[0] {
	case '+', '-', ':':
		i := bytes.Index(buf, []byte("\r\n"))
		if i < 0 {
			return Reply{}, 0, ErrIncomplete
		}
		body := buf[1:i]
		switch buf[0] {
		case '+':
			return Reply{Kind: ReplySimple, Str: bytes.Clone(body)}, i + 2, nil
		case '-':
			return Reply{Kind: ReplyError, Str: bytes.Clone(body)}, i + 2, nil
		default:
			n, err := strconv.ParseInt(string(body), 10, 64)
			if err != nil {
				return Reply{}, 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, body)
			}
			return Integer(n), i + 2, nil
		}

	case '$':
		size, next, err := readLength(buf, 0)
		if err != nil {
			return Reply{}, 0, err
		}
		if size == -1 {
			return NullBulk(), next, nil
		}
		if size < -1 || size > MaxBulkLen {
			return Reply{}, 0, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		end := next + int(size)
		if end+2 > len(buf) {
			return Reply{}, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return Reply{}, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		return Reply{Kind: ReplyBulk, Str: bytes.Clone(buf[next:end])}, end + 2, nil

	case '*':
		count, pos, err := readLength(buf, 0)
		if err != nil {
			return Reply{}, 0, err
		}
		if count == -1 {
			return NullArray(), pos, nil
		}
		if count < -1 || count > MaxArrayLen {
			return Reply{}, 0, fmt.Errorf("%w: invalid array length", ErrProtocol)
		}
		elems := make([]Reply, 0, min(count, 64))
		for i := int64(0); i < count; i++ {
			e, n, err := DecodeReply(buf[pos:])
			if err != nil {
				return Reply{}, 0, err
			}
			elems = append(elems, e)
			pos += n
		}
		return Reply{Kind: ReplyArray, Elems: elems}, pos, nil

	default:
		return Reply{}, 0, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, buf[0])
	}
}

func normalizeCommandName(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	// Uppercase ASCII without allocating for already uppercased tokens.
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return string(bytes.ToUpper(b))
	}
	return string(b)
}
