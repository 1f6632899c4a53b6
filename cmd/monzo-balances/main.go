// Command monzo-balances logs in to Monzo, prints the balance and pots of
// every account and logs out again.
//
// Client credentials come from MONZO_CLIENT_ID / MONZO_CLIENT_SECRET or the
// config file; tokens are kept in the config file between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cli/browser"
	"github.com/jessevdk/go-flags"

	"github.com/petermakeswebsites/monzo-balances/auth"
	"github.com/petermakeswebsites/monzo-balances/balances"
	"github.com/petermakeswebsites/monzo-balances/config"
)

type options struct {
	ConfigPath  string `short:"c" long:"config" description:"config file (default: <user config dir>/monzo-balances/config.yaml)"`
	KeepSession bool   `long:"keep-session" description:"keep the tokens instead of logging out when done"`
	Paste       bool   `long:"paste" description:"paste the redirected URL instead of listening on the redirect URI"`
	NoBrowser   bool   `long:"no-browser" description:"only print the authorization URL"`
	Verbose     bool   `short:"v" long:"verbose" description:"debug logging"`
}

// app holds everything run needs from the outside world.
type app struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	open       func(url string) error
	httpClient *http.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, open: browser.OpenURL}
	err := a.run(ctx, os.Args[1:])
	stop()

	var flagsErr *flags.Error
	if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
		fmt.Fprintln(os.Stdout, flagsErr.Message)
		return
	}
	if err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	opts := &options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 1. Load configuration.
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := config.OpenFileStore(path)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(store)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", store.Path(), "client_id", creds.ClientID, "redirect_uri", creds.RedirectURI)

	// 2. Make sure we hold a working access token.
	prompter := auth.NewPrompter(a.stdin, a.stdout)
	open := a.open
	if opts.NoBrowser {
		open = nil
	}
	client := auth.New(creds, store,
		auth.WithEndpoints(auth.EndpointsFromStore(store)),
		auth.WithHTTPClient(a.httpClient),
		auth.WithOpener(open),
		auth.WithPrompter(prompter),
		auth.WithLogger(logger),
	)
	newReceiver := func() (auth.CallbackReceiver, error) {
		if opts.Paste {
			return auth.NewPasteReceiver(prompter), nil
		}
		server, err := auth.NewCallbackServer(creds.RedirectURI)
		if err != nil {
			logger.Warn("cannot listen on the redirect URI, falling back to pasting the URL", "redirect_uri", creds.RedirectURI, "error", err)
			return auth.NewPasteReceiver(prompter), nil
		}
		return server, nil
	}
	if err := client.Ensure(ctx, newReceiver); err != nil {
		return err
	}

	// 3. Fetch and print.
	service := balances.NewService(client.API(), logger)
	accounts, err := service.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if err := service.AppendBalances(ctx, accounts); err != nil {
		return err
	}
	if err := balances.Render(a.stdout, accounts); err != nil {
		return err
	}

	// 4. Revoke the tokens unless asked to keep them.
	if opts.KeepSession {
		return nil
	}
	return client.LogOut(ctx)
}
