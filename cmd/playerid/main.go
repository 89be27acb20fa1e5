// Package main provides a CLI for managing playerid accounts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msimon/playerid/account"
	"github.com/msimon/playerid/identity"
	"github.com/msimon/playerid/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// envOrDefault returns the environment variable value if set, otherwise the default.
func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

type options struct {
	configPath string
	jsonOutput bool
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("playerid", flag.ExitOnError)

	var opts options
	fs.StringVar(&opts.configPath, "c", envOrDefault("PLAYERID_CONFIG", ""), "Path to configuration file")
	fs.StringVar(&opts.configPath, "config", envOrDefault("PLAYERID_CONFIG", ""), "Path to configuration file")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print accounts as JSON")
	fs.Usage = func() {
		printUsage(fs)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		printUsage(fs)
		return fmt.Errorf("a command is required")
	}

	command, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if command == "help" {
		printUsage(fs)
		return nil
	}
	if _, ok := commands[command]; !ok {
		return fmt.Errorf("unknown command %q", command)
	}

	config, err := identity.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	root, err := logging.NewRoot(config.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	manager, err := identity.NewManagerWithConfig(ctx, config, identity.WithLogger(logging.New(root, "identity")))
	if err != nil {
		return fmt.Errorf("creating identity manager: %w", err)
	}
	defer manager.Close()

	return runCommand(ctx, manager, opts, command, cmdArgs, out)
}

type command struct {
	usage string
	args  int
	run   func(ctx context.Context, m *identity.Manager, opts options, args []string, out io.Writer) error
}

var commands = map[string]command{
	"add-offline":    {usage: "add-offline <username> [id]", args: -1, run: addOffline},
	"remove-offline": {usage: "remove-offline <id>", args: 1, run: removeOffline},
	"offline":        {usage: "offline", args: 0, run: listOffline},
	"login":          {usage: "login", args: 0, run: login},
	"default":        {usage: "default", args: 0, run: showDefault},
	"set-default":    {usage: "set-default <id>", args: 1, run: setDefault},
	"remove":         {usage: "remove <id>", args: 1, run: removeUser},
	"users":          {usage: "users", args: 0, run: listUsers},
}

// commandOrder lists commands in help order.
var commandOrder = []string{"users", "offline", "add-offline", "remove-offline", "login", "default", "set-default", "remove"}

func runCommand(ctx context.Context, m *identity.Manager, opts options, name string, args []string, out io.Writer) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if cmd.args >= 0 && len(args) != cmd.args {
		return fmt.Errorf("usage: playerid %s", cmd.usage)
	}
	return cmd.run(ctx, m, opts, args, out)
}

func addOffline(ctx context.Context, m *identity.Manager, opts options, args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: playerid add-offline <username> [id]")
	}
	var id string
	if len(args) == 2 {
		id = args[1]
	}
	a, err := m.AddOfflineAccount(ctx, args[0], id)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return printJSON(out, a)
	}
	fmt.Fprintln(out, a.ID())
	return nil
}

func removeOffline(ctx context.Context, m *identity.Manager, _ options, args []string, _ io.Writer) error {
	_, found := m.FindOfflineAccount(ctx, args[0])
	// Removal also clears a stale local default, so it runs for unknown ids too.
	m.RemoveOfflineAccount(ctx, args[0])
	if !found {
		return fmt.Errorf("no offline account with id %q", args[0])
	}
	return nil
}

func listOffline(ctx context.Context, m *identity.Manager, opts options, _ []string, out io.Writer) error {
	return printAccounts(out, m.ListOfflineAccounts(ctx), opts.jsonOutput)
}

func listUsers(ctx context.Context, m *identity.Manager, opts options, _ []string, out io.Writer) error {
	accounts, err := m.ListAllUsers(ctx)
	if err != nil {
		return err
	}
	return printAccounts(out, accounts, opts.jsonOutput)
}

func login(ctx context.Context, m *identity.Manager, opts options, _ []string, out io.Writer) error {
	flow, session, err := m.Login(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "To sign in, open %s and enter the code %s\n", session.VerificationURI, session.UserCode)

	cred, err := flow.Await(ctx)
	if err != nil {
		return err
	}
	a, err := cred.Account()
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return printJSON(out, a)
	}
	fmt.Fprintf(out, "Signed in as %s (%s)\n", a.Profile.Name, a.ID())
	if exp, ok := cred.ExpiresAt(); ok {
		fmt.Fprintf(out, "Access token expires at %s\n", exp.Format(time.RFC3339))
	}
	return nil
}

func showDefault(ctx context.Context, m *identity.Manager, opts options, _ []string, out io.Writer) error {
	d, err := m.ResolveDefault(ctx)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return printJSON(out, map[string]string{"id": d.ID, "source": d.Kind.String()})
	}
	if !d.IsSet() {
		fmt.Fprintln(out, "no default user")
		return nil
	}
	fmt.Fprintf(out, "%s (%s)\n", d.ID, d.Kind)
	return nil
}

func setDefault(ctx context.Context, m *identity.Manager, _ options, args []string, _ io.Writer) error {
	return m.SetDefaultUser(ctx, args[0])
}

func removeUser(ctx context.Context, m *identity.Manager, _ options, args []string, _ io.Writer) error {
	return m.RemoveUser(ctx, args[0])
}

func printAccounts(out io.Writer, accounts []account.Account, asJSON bool) error {
	if asJSON {
		return printJSON(out, accounts)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(out, "no accounts")
		return nil
	}
	for _, a := range accounts {
		kind := string(a.Type)
		if a.Validate() != nil {
			kind = "invalid"
		}
		fmt.Fprintf(out, "%-8s %-40s %s\n", kind, a.ID(), a.Profile.Name)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", fs.Name())
	fmt.Fprintf(os.Stderr, "Manage online and offline player accounts.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
	fmt.Fprintf(os.Stderr, "  PLAYERID_CONFIG    Path to configuration file\n")
	fmt.Fprintf(os.Stderr, "  PLAYERID_*         Configuration overrides (e.g. PLAYERID_STORAGE_TYPE)\n")
	fmt.Fprintf(os.Stderr, "\nConfiguration file format (JSON):\n")
	fmt.Fprintf(os.Stderr, `  {
    "storage": { "type": "file", "file": { "path": "accounts.json" } },
    "remote": { "type": "http", "http": { "baseUrl": "http://localhost:8080" } },
    "login": { "timeout": "10m" },
    "log": { "level": "info", "format": "text" }
  }
`)
}
