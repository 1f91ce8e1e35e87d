package output

import (
	"encoding/json"
	"io"

	"github.com/yndnr/respkv/internal/cli/connection"
)

// JSONFormatter writes each reply as a single JSON document. Error replies
// become {"error": "..."}.
type JSONFormatter struct {
	Indent bool
}

// Format writes reply as JSON.
func (f *JSONFormatter) Format(w io.Writer, reply any) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(toJSON(reply))
}

func toJSON(reply any) any {
	switch v := reply.(type) {
	case connection.Status:
		return string(v)
	case *connection.ReplyError:
		return map[string]string{"error": v.Message}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toJSON(item)
		}
		return out
	default:
		return v
	}
}
