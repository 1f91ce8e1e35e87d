package redisserver

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/yndnr/respkv/internal/core/domain"
	"github.com/yndnr/respkv/internal/storage/memory"
	"github.com/yndnr/respkv/internal/storage/snapshot"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

// errPersistenceDisabled is returned by SAVE when no saver is configured.
var errPersistenceDisabled = errors.New("persistence is disabled")

// Saver persists the whole key space on demand.
type Saver interface {
	Save(src *memory.Store) (*snapshot.Info, error)
}

// commandFunc executes one command. args[0] is the command name.
type commandFunc func(h *CommandHandler, args [][]byte) Reply

// command describes one entry of the command table.
//
// arity follows the Redis convention and counts the command name: a
// positive value is an exact count, a negative value -N means at least N.
type command struct {
	name    string
	arity   int
	maxArgs int
	fn      commandFunc
}

func (c *command) arityOK(n int) bool {
	if c.arity >= 0 {
		if n != c.arity {
			return false
		}
	} else if n < -c.arity {
		return false
	}
	return c.maxArgs == 0 || n <= c.maxArgs
}

var commandTable = map[string]*command{
	"PING":   {name: "ping", arity: -1, maxArgs: 2, fn: (*CommandHandler).handlePing},
	"ECHO":   {name: "echo", arity: 2, fn: (*CommandHandler).handleEcho},
	"QUIT":   {name: "quit", arity: 1, fn: (*CommandHandler).handleQuit},
	"GET":    {name: "get", arity: 2, fn: (*CommandHandler).handleGet},
	"SET":    {name: "set", arity: -3, fn: (*CommandHandler).handleSet},
	"EXISTS": {name: "exists", arity: -2, fn: (*CommandHandler).handleExists},
	"DEL":    {name: "del", arity: -2, fn: (*CommandHandler).handleDel},
	"INCR":   {name: "incr", arity: 2, fn: (*CommandHandler).handleIncr},
	"DECR":   {name: "decr", arity: 2, fn: (*CommandHandler).handleDecr},
	"LPUSH":  {name: "lpush", arity: -3, fn: (*CommandHandler).handleLPush},
	"RPUSH":  {name: "rpush", arity: -3, fn: (*CommandHandler).handleRPush},
	"LRANGE": {name: "lrange", arity: 4, fn: (*CommandHandler).handleLRange},
	"LLEN":   {name: "llen", arity: 2, fn: (*CommandHandler).handleLLen},
	"TTL":    {name: "ttl", arity: 2, fn: (*CommandHandler).handleTTL},
	"PTTL":   {name: "pttl", arity: 2, fn: (*CommandHandler).handlePTTL},
	"DBSIZE": {name: "dbsize", arity: 1, fn: (*CommandHandler).handleDBSize},
	"SAVE":   {name: "save", arity: 1, fn: (*CommandHandler).handleSave},
}

// CommandHandler executes commands against the store.
//
// It is not safe for concurrent use; the event loop owns it together with
// the store.
type CommandHandler struct {
	store   *memory.Store
	saver   Saver
	metrics *metric.Registry
	logger  *slog.Logger
}

// NewCommandHandler creates a new CommandHandler. saver and metrics may be nil.
func NewCommandHandler(store *memory.Store, saver Saver, metrics *metric.Registry, logger *slog.Logger) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandHandler{
		store:   store,
		saver:   saver,
		metrics: metrics,
		logger:  logger,
	}
}

// Store returns the store the handler operates on.
func (h *CommandHandler) Store() *memory.Store {
	return h.store
}

// Execute runs one decoded command and returns its reply.
//
// Arity is validated before any handler runs, so a rejected command never
// mutates the store.
func (h *CommandHandler) Execute(args [][]byte) Reply {
	if len(args) == 0 {
		return ErrorReply(domain.NewCommandError("EMPTY", "empty command"))
	}

	start := time.Now()
	cmd, ok := commandTable[normalizeCommandName(args[0])]
	if !ok {
		h.metrics.ObserveCommand("unknown", "error", time.Since(start))
		return ErrorReply(domain.UnknownCommand(string(args[0])))
	}

	var reply Reply
	if !cmd.arityOK(len(args)) {
		reply = ErrorReply(domain.WrongArity(cmd.name))
	} else {
		reply = cmd.fn(h, args)
	}

	status := "ok"
	if reply.IsError() {
		status = "error"
	}
	h.metrics.ObserveCommand(cmd.name, status, time.Since(start))
	return reply
}

// Save writes a snapshot through the configured saver and records the
// outcome. reason is only used for logging.
func (h *CommandHandler) Save(reason string) (*snapshot.Info, error) {
	if h.saver == nil {
		return nil, errPersistenceDisabled
	}

	start := time.Now()
	info, err := h.saver.Save(h.store)
	if err != nil {
		h.metrics.ObserveSnapshot(0, time.Since(start), err)
		h.logger.Error("snapshot save failed", "reason", reason, "error", err)
		return nil, err
	}
	h.metrics.ObserveSnapshot(info.Size, time.Since(start), nil)
	h.logger.Debug("snapshot save finished", "reason", reason, "keys", info.KeyCount)
	return info, nil
}

// ============================================================================
// Connection commands
// ============================================================================

// PING [message]
func (h *CommandHandler) handlePing(args [][]byte) Reply {
	if len(args) > 1 {
		return Bulk(args[1])
	}
	return replyPong
}

// ECHO message
func (h *CommandHandler) handleEcho(args [][]byte) Reply {
	return Bulk(args[1])
}

// QUIT is answered here; the connection layer closes the socket after the
// reply is flushed.
func (h *CommandHandler) handleQuit(_ [][]byte) Reply {
	return replyOK
}

// ============================================================================
// String commands
// ============================================================================

// GET key
func (h *CommandHandler) handleGet(args [][]byte) Reply {
	v, ok := h.store.Get(string(args[1]))
	if !ok {
		return NullBulk()
	}
	if !v.IsString() {
		return ErrorReply(domain.ErrWrongType)
	}
	return Bulk(v.Bytes())
}

// SET key value [EX seconds | PX milliseconds | EXAT unix-seconds | PXAT unix-milliseconds]
func (h *CommandHandler) handleSet(args [][]byte) Reply {
	opt, err := parseSetOptions(args[3:])
	if err != nil {
		return ErrorReply(err)
	}
	if err := h.store.Set(string(args[1]), domain.NewString(args[2]), opt); err != nil {
		return ErrorReply(err)
	}
	return replyOK
}

// parseSetOptions parses SET's optional trailing arguments. Exactly zero
// or one flag/value pair is accepted.
func parseSetOptions(opts [][]byte) (domain.ExpiryOption, error) {
	if len(opts) == 0 {
		return domain.NoExpiry, nil
	}
	if len(opts) != 2 {
		return domain.NoExpiry, domain.ErrSyntax
	}

	var kind domain.ExpiryKind
	switch normalizeCommandName(opts[0]) {
	case "EX":
		kind = domain.ExpiryRelSeconds
	case "PX":
		kind = domain.ExpiryRelMillis
	case "EXAT":
		kind = domain.ExpiryAbsSeconds
	case "PXAT":
		kind = domain.ExpiryAbsMillis
	default:
		return domain.NoExpiry, domain.ErrSyntax
	}

	n, err := parseInteger(opts[1])
	if err != nil {
		return domain.NoExpiry, err
	}
	if n <= 0 {
		return domain.NoExpiry, domain.ErrInvalidExpire
	}
	return domain.ExpiryOption{Kind: kind, Value: n}, nil
}

// parseInteger parses a base-10 int64 argument.
func parseInteger(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, domain.ErrNotInteger
	}
	return n, nil
}

// INCR key
func (h *CommandHandler) handleIncr(args [][]byte) Reply {
	n, err := h.store.Incr(string(args[1]))
	if err != nil {
		return ErrorReply(err)
	}
	return Integer(n)
}

// DECR key
func (h *CommandHandler) handleDecr(args [][]byte) Reply {
	n, err := h.store.Decr(string(args[1]))
	if err != nil {
		return ErrorReply(err)
	}
	return Integer(n)
}

// ============================================================================
// Keyspace commands
// ============================================================================

// EXISTS key [key ...]
//
// A key named more than once is counted each time.
func (h *CommandHandler) handleExists(args [][]byte) Reply {
	var count int64
	for _, key := range args[1:] {
		if h.store.Exists(string(key)) {
			count++
		}
	}
	return Integer(count)
}

// DEL key [key ...]
func (h *CommandHandler) handleDel(args [][]byte) Reply {
	var deleted int64
	for _, key := range args[1:] {
		if h.store.Delete(string(key)) {
			deleted++
		}
	}
	return Integer(deleted)
}

// TTL key
//
// Returns:
//   - -2 if the key does not exist
//   - -1 if the key exists but has no associated expire
//   - remaining seconds otherwise, rounded to the nearest second
func (h *CommandHandler) handleTTL(args [][]byte) Reply {
	d, state := h.store.TTL(string(args[1]))
	switch state {
	case memory.TTLMissing:
		return Integer(-2)
	case memory.TTLPersistent:
		return Integer(-1)
	default:
		return Integer((d.Milliseconds() + 500) / 1000)
	}
}

// PTTL key
func (h *CommandHandler) handlePTTL(args [][]byte) Reply {
	d, state := h.store.TTL(string(args[1]))
	switch state {
	case memory.TTLMissing:
		return Integer(-2)
	case memory.TTLPersistent:
		return Integer(-1)
	default:
		return Integer(d.Milliseconds())
	}
}

// DBSIZE
func (h *CommandHandler) handleDBSize(_ [][]byte) Reply {
	return Integer(int64(h.store.Len()))
}

// ============================================================================
// List commands
// ============================================================================

// LPUSH key element [element ...]
func (h *CommandHandler) handleLPush(args [][]byte) Reply {
	return h.push(args, memory.Head)
}

// RPUSH key element [element ...]
func (h *CommandHandler) handleRPush(args [][]byte) Reply {
	return h.push(args, memory.Tail)
}

func (h *CommandHandler) push(args [][]byte, side memory.Side) Reply {
	values := make([][]byte, len(args)-2)
	for i, v := range args[2:] {
		if v == nil {
			v = []byte{}
		}
		values[i] = v
	}
	n, err := h.store.ListPush(string(args[1]), values, side)
	if err != nil {
		return ErrorReply(err)
	}
	return Integer(int64(n))
}

// LRANGE key start stop
//
// A missing key replies with the null array.
func (h *CommandHandler) handleLRange(args [][]byte) Reply {
	start, err := parseInteger(args[2])
	if err != nil {
		return ErrorReply(err)
	}
	stop, err := parseInteger(args[3])
	if err != nil {
		return ErrorReply(err)
	}
	items, err := h.store.ListRange(string(args[1]), start, stop)
	if err != nil {
		return ErrorReply(err)
	}
	return BulkArray(items)
}

// LLEN key
func (h *CommandHandler) handleLLen(args [][]byte) Reply {
	n, err := h.store.ListLen(string(args[1]))
	if err != nil {
		return ErrorReply(err)
	}
	return Integer(int64(n))
}

// ============================================================================
// Persistence
// ============================================================================

// SAVE
//
// Blocks the event loop for the duration of the write.
func (h *CommandHandler) handleSave(_ [][]byte) Reply {
	if _, err := h.Save("command"); err != nil {
		return ErrorReply(domain.ErrPersistence.WithMessage("snapshot failed: " + err.Error()))
	}
	return replyOK
}
