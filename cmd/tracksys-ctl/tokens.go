package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/session"
)

type mintRequest struct {
	User domainauth.User
	TTL  time.Duration
	Key  string
}

func parseMintFlags(args []string, defaultTTL time.Duration) (mintRequest, error) {
	fs := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.Int64("user-id", 0, "staff user id")
	computeID := fs.String("compute-id", "", "compute id (required)")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	role := fs.String("role", string(domainauth.RoleViewer), "admin, supervisor, student or viewer")
	ttl := fs.Duration("ttl", defaultTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return mintRequest{}, err
	}
	if strings.TrimSpace(*computeID) == "" {
		return mintRequest{}, errors.New("-compute-id is required")
	}
	r, err := domainauth.ParseRole(*role)
	if err != nil {
		return mintRequest{}, err
	}
	return mintRequest{
		User: domainauth.User{
			ID:        *userID,
			ComputeID: strings.TrimSpace(*computeID),
			FirstName: *first,
			LastName:  *last,
			Role:      r,
		},
		TTL: *ttl,
	}, nil
}

func runMintToken(ctx *commandContext, args []string) error {
	req, err := parseMintFlags(args, ctx.Config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	codec := session.NewCodec(ctx.Config.Auth.JWTKey)
	token, err := codec.Mint(req.User, req.TTL)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	_, err = fmt.Fprintln(ctx.Out, token)
	return err
}

func runDecodeToken(ctx *commandContext, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: decode-token <token>")
	}
	u, err := session.NewCodec(ctx.Config.Auth.JWTKey).Decode(strings.TrimSpace(args[0]))
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	return printUser(ctx.Out, u)
}

func printUser(w io.Writer, u domainauth.User) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"userID", fmt.Sprint(u.ID)},
		{"computeID", u.ComputeID},
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
		{"role", string(u.Role)},
		{"signedIn", fmt.Sprint(u.SignedIn())},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	return tw.Flush()
}
