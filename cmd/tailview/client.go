package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/socketrpc"
)

// clientCommands are the subcommands that talk to a running tailview over
// its RPC socket instead of starting a server.
var clientCommands = map[string]func(c *socketrpc.Client, fs *pflag.FlagSet, out io.Writer) error{
	"files":   runFilesCommand,
	"history": runHistoryCommand,
}

func isClientCommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	_, ok := clientCommands[args[0]]
	return ok
}

func newClientFlagSet(command string, errOut io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("tailview "+command, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.String("socket-path", socketrpc.DefaultSocketPath(), "unix socket of the running tailview")
	fs.Bool("json", false, "print raw JSON, one object per line")
	if command == "history" {
		fs.Usage = func() {
			fmt.Fprintf(errOut, "Usage: tailview history [flags] PATH\n\nFlags:\n")
			fs.PrintDefaults()
		}
		fs.StringP("filter", "f", "", "filter text, as typed in the browser")
		fs.Bool("advanced", false, "parse the filter as a boolean query")
		fs.Bool("case-insensitive", false, "match the filter case-insensitively")
		fs.IntP("limit", "n", 0, "print only the newest N matches")
	}
	return fs
}

// runClient runs a client subcommand and returns the process exit code.
func runClient(args []string, out, errOut io.Writer) int {
	command := args[0]
	fs := newClientFlagSet(command, errOut)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	socketPath, _ := fs.GetString("socket-path")
	c, err := socketrpc.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(errOut, "Error: is tailview running? %v\n", err)
		return 1
	}
	defer c.Close()

	if err := clientCommands[command](c, fs, out); err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runFilesCommand(c *socketrpc.Client, fs *pflag.FlagSet, out io.Writer) error {
	files, err := c.ListFiles()
	if err != nil {
		return err
	}
	if asJSON, _ := fs.GetBool("json"); asJSON {
		return writeJSONLines(out, files)
	}
	for _, f := range files {
		state := ""
		switch {
		case f.Errored:
			state = " (error)"
		case f.Removed:
			state = " (removed)"
		}
		fmt.Fprintf(out, "%s\t%s lines\t%s%s\n", f.Path, humanize.Comma(int64(f.Lines)), humanize.IBytes(uint64(max(f.Offset, 0))), state)
	}
	return nil
}

func runHistoryCommand(c *socketrpc.Client, fs *pflag.FlagSet, out io.Writer) error {
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("history takes exactly one path")
	}
	p := socketrpc.HistoryParams{Path: fs.Arg(0)}
	p.Filter, _ = fs.GetString("filter")
	p.Advanced, _ = fs.GetBool("advanced")
	p.CaseInsensitive, _ = fs.GetBool("case-insensitive")
	p.Limit, _ = fs.GetInt("limit")
	if p.Limit < 0 {
		return fmt.Errorf("invalid limit: %d", p.Limit)
	}

	events, err := c.History(p)
	if err != nil {
		return err
	}
	if asJSON, _ := fs.GetBool("json"); asJSON {
		return writeJSONLines(out, events)
	}
	for _, ev := range events {
		if ev.Kind == model.KindSystem {
			fmt.Fprintf(out, "-- %s\n", ev.Content)
			continue
		}
		fmt.Fprintln(out, ev.Content)
	}
	return nil
}

func writeJSONLines[T any](out io.Writer, items []T) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}
