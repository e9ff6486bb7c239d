// Command tracksys-ctl holds operator chores for the admin front end:
// minting and inspecting session tokens and managing stored browser state.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

func main() {
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage(os.Stderr)
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must exit non-zero when the command fails
	}
}

func commands() map[string]command {
	list := []command{
		{name: "mint-token", description: "Mint a signed session token for a staff member", run: runMintToken},
		{name: "decode-token", description: "Decode a session token and print its claims", run: runDecodeToken},
		{name: "show-browser", description: "Show what is stored for a browser id", run: runShowBrowser},
		{name: "purge-browser", description: "Delete everything stored for a browser id", run: runPurgeBrowser},
		{name: "show-config", description: "Print the effective configuration", run: runShowConfig},
	}
	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.name] = c
	}
	return out
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tracksys-ctl <command> [flags]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "commands:")
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-14s %s\n", name, cmds[name].description)
	}
}
