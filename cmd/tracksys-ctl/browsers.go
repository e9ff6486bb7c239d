package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/bootstrap"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

// openStorage connects to the configured browser storage. Memory storage
// lives inside the server process, so only Redis can be inspected here.
func openStorage(ctx *commandContext) (ports.BrowserStorage, func(), error) {
	if ctx.Config.Storage.Backend != config.StorageBackendRedis {
		return nil, nil, errors.New("browser storage is in server memory; set STORAGE_BACKEND=redis to manage it")
	}
	client, err := bootstrap.ConnectRedis(ctx.Ctx, bootstrap.RedisConnectConfig{Redis: ctx.Config.Redis, Logger: ctx.Logger})
	if err != nil {
		return nil, nil, err
	}
	storage, err := bootstrap.BuildBrowserStorage(ctx.Config.Storage, client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return storage, func() { _ = client.Close() }, nil
}

func browserArg(args []string, usage string) (string, error) {
	if len(args) != 1 {
		return "", errors.New(usage)
	}
	id := strings.TrimSpace(args[0])
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid browser id %q: %w", id, err)
	}
	return id, nil
}

func runShowBrowser(ctx *commandContext, args []string) error {
	id, err := browserArg(args, "usage: show-browser <browser-id>")
	if err != nil {
		return err
	}
	storage, done, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer done()
	return showBrowser(ctx.Ctx, ctx.Out, storage.For(id), session.NewCodec(ctx.Config.Auth.JWTKey))
}

func showBrowser(ctx context.Context, w io.Writer, cs ports.ClientStorage, codec *session.Codec) error {
	token, err := cs.Get(ctx, ports.KeyToken)
	if err != nil {
		return err
	}
	intent, err := cs.Get(ctx, ports.KeyIntent)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "intent\t%s\n", orNone(intent))
	switch {
	case token == "":
		_, _ = fmt.Fprintf(tw, "session\t%s\n", "none")
	default:
		u, derr := codec.Decode(token)
		if derr != nil {
			_, _ = fmt.Fprintf(tw, "session\tunreadable token (%v)\n", derr)
		} else {
			_, _ = fmt.Fprintf(tw, "session\t%s [%s]\n", orNone(u.DisplayName()), u.Role)
		}
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func runPurgeBrowser(ctx *commandContext, args []string) error {
	id, err := browserArg(args, "usage: purge-browser <browser-id>")
	if err != nil {
		return err
	}
	storage, done, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err = storage.Purge(ctx.Ctx, id); err != nil {
		return fmt.Errorf("purge browser: %w", err)
	}
	ctx.Logger.InfoContext(ctx.Ctx, "browser storage purged", "browser", id)
	return nil
}

func runShowConfig(ctx *commandContext, _ []string) error {
	return printConfig(ctx.Out, &ctx.Config)
}

func printConfig(w io.Writer, cfg *config.AppConfig) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"services", strings.Join(bootstrap.GetEnabledServices(cfg), ",")},
		{"http.addr", cfg.HTTP.Addr},
		{"auth.mode", string(cfg.Auth.Mode)},
		{"auth.authenticate_url", cfg.Auth.AuthenticateURL},
		{"auth.verifies_tokens", fmt.Sprint(strings.TrimSpace(cfg.Auth.JWTKey) != "")},
		{"backend.api_url", cfg.Backend.APIURL},
		{"backend.jobs_url", cfg.Backend.JobsURL},
		{"storage.backend", string(cfg.Storage.Backend)},
		{"poll.pdf_interval", cfg.Poll.PDFInterval.String()},
		{"poll.job_interval", cfg.Poll.JobInterval.String()},
		{"workspace.capacity", fmt.Sprint(cfg.Workspace.Capacity)},
		{"workspace.idle_ttl", cfg.Workspace.IdleTTL.String()},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
