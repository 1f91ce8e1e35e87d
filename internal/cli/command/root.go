package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/cli/connection"
	"github.com/yndnr/respkv/internal/cli/output"
	"github.com/yndnr/respkv/internal/cli/repl"
	"github.com/yndnr/respkv/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:            "respkv-cli",
		Usage:           "send commands to a respkv server",
		UsageText:       "respkv-cli [options] [command [arg ...]]",
		Version:         buildinfo.String(),
		Flags:           globalFlags(),
		HideHelpCommand: true,
		Action:          run,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Usage:   "server host",
			EnvVars: []string{"RESPKV_HOST"},
			Value:   "127.0.0.1",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "server port",
			EnvVars: []string{"RESPKV_PORT"},
			Value:   6379,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "dial and read timeout",
			Value: 5 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format: text, raw, json",
			Value:   string(output.FormatText),
		},
		&cli.BoolFlag{
			Name:  "no-history",
			Usage: "do not read or write the history file in interactive mode",
		},
	}
}

// GlobalFlags holds the parsed global flags.
type GlobalFlags struct {
	Host      string
	Port      int
	Timeout   time.Duration
	Output    output.Format
	NoHistory bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) (*GlobalFlags, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, err
	}
	return &GlobalFlags{
		Host:      c.String("host"),
		Port:      c.Int("port"),
		Timeout:   c.Duration("timeout"),
		Output:    format,
		NoHistory: c.Bool("no-history"),
	}, nil
}

func run(c *cli.Context) error {
	flags, err := ParseGlobalFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := connection.Dial(ctx, connection.Options{
		Host:        flags.Host,
		Port:        flags.Port,
		DialTimeout: flags.Timeout,
		ReadTimeout: flags.Timeout,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Could not connect to respkv at %s: %v", flags.Host, err), 1)
	}
	defer client.Close()

	exec := executor(client, output.NewFormatter(flags.Output), c.App.Writer)

	if c.NArg() > 0 {
		if err := exec(ctx, c.Args().Slice()); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}

	opts := []repl.Option{repl.WithIO(reader(c.App.Reader), c.App.Writer)}
	if isTerminal(c.App.Reader) {
		opts = append(opts, repl.WithPrompt(client.Addr()+"> "))
	}
	if !flags.NoHistory && isTerminal(c.App.Reader) {
		opts = append(opts, repl.WithHistory(repl.NewHistory(repl.DefaultHistoryFile())))
	}
	if err := repl.New(exec, opts...).Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// executor sends one command and prints its reply. Only transport errors
// are returned; error replies are printed like any other reply.
func executor(client *connection.Client, f output.Formatter, w io.Writer) repl.Executor {
	return func(ctx context.Context, args []string) error {
		reply, err := client.Do(ctx, args)
		if err != nil {
			return err
		}
		return f.Format(w, reply)
	}
}

func reader(r io.Reader) io.Reader {
	if r == nil {
		return os.Stdin
	}
	return r
}

// isTerminal reports whether r is an interactive character device.
func isTerminal(r io.Reader) bool {
	f, ok := reader(r).(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
