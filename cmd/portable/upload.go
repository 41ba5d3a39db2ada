package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/transfer/term"
)

var errNotAccepted = errors.New("archive was not imported")

func uploadCmd() *cobra.Command {
	var (
		server  string
		token   string
		timeout time.Duration
		mode    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "upload <archive>",
		Short: "Upload a challenge archive to a running service",
		Long: `Post an archive to the service's import endpoint, the same way the admin
transfer page does, and report the result.

The archive's compression is chosen from its name: .tar is read as is,
.bz2 as bzip2 and anything else as gzip.

Examples:
  portable upload export.tar.gz
  portable upload --server https://ctf.example.org --token "$ADMIN_TOKEN" export.tar.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentMode, ok := transfer.ParseContentMode(mode)
			if !ok {
				return fmt.Errorf("invalid --mode %q: want text or markup", mode)
			}
			return runUpload(cmd.Context(), args[0], server, token, timeout, contentMode, verbose)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the service")
	cmd.Flags().StringVar(&token, "token", os.Getenv("PORTABLE_TOKEN"), "Bearer token for admin routes")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long")
	cmd.Flags().StringVar(&mode, "mode", "text", "How error details are shown: text or markup")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log the request")

	return cmd
}

func runUpload(ctx context.Context, archive, server, token string, timeout time.Duration, mode transfer.ContentMode, verbose bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(archive); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := zerolog.Nop()
	if verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	client := &http.Client{Transport: bearer{token: token, next: http.DefaultTransport}}

	outcome := transfer.TransportFailed
	ctrl := transfer.NewController(server,
		term.NewFileForm(archive),
		term.NewTrigger(os.Stdout),
		term.NewRegion(os.Stdout, term.Success, "Challenges imported from "+archive),
		term.NewRegion(os.Stderr, term.Failure, ""),
		transfer.WithHTTPClient(client),
		transfer.WithContentMode(mode),
		transfer.WithLogger(logger),
		transfer.OnSettled(func(o transfer.Outcome) { outcome = o }),
	)

	info("Uploading %s to %s", archive, ctrl.URL())
	ctrl.OnImportClick(ctx)
	ctrl.Wait()

	if outcome != transfer.Accepted {
		return fmt.Errorf("%w (%s)", errNotAccepted, outcome)
	}
	return nil
}

// bearer adds an Authorization header to every request.
type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.token == "" {
		return b.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(req)
}
