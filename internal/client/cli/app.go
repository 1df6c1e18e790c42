package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/dmitrijs2005/databazaar/internal/client/client"
	"github.com/dmitrijs2005/databazaar/internal/client/config"
	"github.com/dmitrijs2005/databazaar/internal/flagx"
)

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage error")

type App struct {
	config *config.Config
	api    client.Client
	in     *bufio.Reader
	out    io.Writer
}

func NewApp(c *config.Config) (*App, error) {
	api, err := client.NewHTTPClient(c.ServerURL, c.Token)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: api, in: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

type command func(ctx context.Context, args []string) error

func (a *App) commands() map[string]command {
	return map[string]command{
		"keygen":   a.keygen,
		"token":    a.token,
		"upload":   a.upload,
		"download": a.download,
		"list":     a.list,
		"mine":     a.mine,
		"show":     a.show,
		"update":   a.update,
		"delete":   a.delete,
	}
}

// Run executes the command named in args. Global flags known to the config
// package are skipped.
func (a *App) Run(ctx context.Context, args []string) error {
	args = flagx.DropArgs(args, slices.Concat(config.GlobalFlags, []string{"-c", "-config"}))
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		a.usage()
		return nil
	}

	cmd, ok := a.commands()[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
	return cmd(ctx, args[1:])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: dbz [-a url] [-t token] [-i seconds] <command> [flags] [args]")
	fmt.Fprintln(a.out, "Commands: keygen, token, upload, download, list, mine, show, update, delete")
}

// withTimeout bounds one API call by the configured request timeout.
func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}
