package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is a simple-string reply such as OK or PONG.
type Status string

// ReplyError is an error reply sent by the server. It is a valid response,
// not a transport failure.
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string { return e.Message }

// Options configures a Client.
type Options struct {
	Host        string
	Port        int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// Addr returns host:port.
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Client is a single connection to a server.
type Client struct {
	rdb  *redis.Client
	addr string
}

// Dial connects to the server and verifies it answers PING.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            opts.Addr(),
		Protocol:        2,
		DisableIdentity: true,
		MaxRetries:      -1,
		PoolSize:        1,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect %s: %w", opts.Addr(), err)
	}
	return &Client{rdb: rdb, addr: opts.Addr()}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// Do sends one command and returns its reply. Error replies are returned as
// a *ReplyError value with a nil error; the error result is reserved for
// transport failures.
func (c *Client) Do(ctx context.Context, args []string) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	cmdArgs := make([]any, len(args))
	for i, a := range args {
		cmdArgs[i] = a
	}

	val, err := c.rdb.Do(ctx, cmdArgs...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return &ReplyError{Message: rerr.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	if s, ok := val.(string); ok && isStatusReply(args) {
		return Status(s), nil
	}
	return val, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// isStatusReply reports whether a successful reply to args is a simple
// string rather than a bulk string. RESP2 clients cannot tell the two apart
// after decoding, so the command decides.
func isStatusReply(args []string) bool {
	switch strings.ToUpper(args[0]) {
	case "PING":
		return len(args) == 1
	case "SET", "SAVE", "QUIT":
		return true
	}
	return false
}
