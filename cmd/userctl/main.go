// Command userctl manages users, activities and sessions directly against the
// configured storage backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/celerix-dev/celerix-users/internal/backend"
	"github.com/celerix-dev/celerix-users/internal/config"
	"github.com/celerix-dev/celerix-users/internal/engine"
	"github.com/celerix-dev/celerix-users/internal/logger"
	"github.com/celerix-dev/celerix-users/internal/session"
	"github.com/celerix-dev/celerix-users/internal/userstore"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

// cli carries what every command needs.
type cli struct {
	ctx     context.Context
	cfg     *config.Config
	log     logger.Logger
	out     io.Writer
	manager *userstore.Manager
	session *session.Session
	backend *backend.Backend
}

type command struct {
	usage string
	args  int // minimum positional arguments
	run   func(c *cli, args []string) error
}

var commands = map[string]command{
	"create": {"create <username> <password>", 2, func(c *cli, a []string) error {
		return check(c.manager.CreateUser(a[0], a[1]), "could not create user %s", a[0])
	}},
	"delete": {"delete <username>", 1, func(c *cli, a []string) error {
		return check(c.manager.DeleteUser(a[0]), "could not delete user %s", a[0])
	}},
	"list": {"list", 0, func(c *cli, a []string) error {
		return printJSON(c.out, c.manager.ListUsers())
	}},
	"activities": {"activities <username>", 1, func(c *cli, a []string) error {
		return printJSON(c.out, c.manager.ActivitiesFor(a[0]))
	}},
	"record": {"record <username> <description...>", 2, func(c *cli, a []string) error {
		return check(c.manager.RecordActivity(a[0], strings.Join(a[1:], " ")), "could not record activity")
	}},
	"clear-activities": {"clear-activities <username>", 1, func(c *cli, a []string) error {
		return check(c.manager.ClearActivitiesFor(a[0]), "could not clear activities for %s", a[0])
	}},
	"login": {"login <username> <password>", 2, func(c *cli, a []string) error {
		if !c.session.Login(a[0], a[1]) {
			return fmt.Errorf("invalid username or password")
		}
		user, _ := c.session.CurrentUser()
		return printJSON(c.out, user)
	}},
	"logout": {"logout", 0, func(c *cli, a []string) error {
		c.session.Logout()
		return nil
	}},
	"whoami": {"whoami", 0, func(c *cli, a []string) error {
		user, ok := c.session.CurrentUser()
		if !ok {
			return fmt.Errorf("not logged in")
		}
		return printJSON(c.out, user)
	}},
	"usage": {"usage", 0, func(c *cli, a []string) error {
		return printJSON(c.out, c.manager.StorageUsage())
	}},
	"reset": {"reset", 0, func(c *cli, a []string) error {
		return check(c.manager.ClearAll(), "could not reset storage")
	}},
	"migrate": {"migrate <dst-backend>", 1, migrate},
	"origins": {"origins", 0, origins},
}

func run(ctx context.Context, argv []string, out io.Writer) int {
	cfg, args, err := config.Load("userctl", argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if len(args) == 0 {
		printUsage(out)
		return 2
	}

	name := strings.ToLower(args[0])
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(out, "Unknown command: %s\n", args[0])
		printUsage(out)
		return 2
	}
	if len(args)-1 < cmd.args {
		fmt.Fprintf(os.Stderr, "Usage: userctl %s\n", cmd.usage)
		return 2
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	c, err := open(ctx, cfg, log, out)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return 1
	}
	defer c.backend.Close()

	if err := cmd.run(c, args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func open(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) (*cli, error) {
	b, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	matcher, err := userstore.MatcherFor(cfg.PasswordScheme)
	if err != nil {
		b.Close()
		return nil, err
	}

	store := userstore.New(b, userstore.Options{AdminPassword: cfg.AdminPassword, Matcher: matcher, Logger: log})
	manager := userstore.NewManager(store, log)
	if !manager.Initialize() {
		b.Close()
		return nil, fmt.Errorf("could not initialize user store")
	}

	return &cli{
		ctx:     ctx,
		cfg:     cfg,
		log:     log,
		out:     out,
		manager: manager,
		session: session.New(store, session.Options{Timeout: cfg.SessionTimeout, Logger: log}),
		backend: b,
	}, nil
}

// migrate copies every item of the configured backend into dst, which shares
// the rest of the configuration.
func migrate(c *cli, args []string) error {
	dstCfg := *c.cfg
	dstCfg.Backend = args[0]
	if err := dstCfg.Validate(); err != nil {
		return err
	}
	if dstCfg.Backend == c.cfg.Backend {
		return fmt.Errorf("source and destination are both %s", dstCfg.Backend)
	}

	dst, err := backend.Open(c.ctx, &dstCfg, c.log)
	if err != nil {
		return err
	}
	defer dst.Close()

	n, err := engine.Migrate(c.backend, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Migrated %d items from %s to %s\n", n, c.cfg.Backend, dstCfg.Backend)
	return nil
}

// origins lists the origins that have a data file under the file backend's
// data directory.
func origins(c *cli, args []string) error {
	if c.cfg.Backend != config.BackendFile {
		return fmt.Errorf("origins needs the file backend, not %s", c.cfg.Backend)
	}
	p, err := engine.NewPersistence(c.cfg.DataDir)
	if err != nil {
		return err
	}
	list, err := p.Origins()
	if err != nil {
		return err
	}
	if list == nil {
		list = []string{}
	}
	return printJSON(c.out, list)
}

func check(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf(format, args...)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "userctl - manage users and activity logs")
	fmt.Fprintln(out, "\nUsage:")
	for _, name := range []string{"create", "delete", "list", "activities", "record", "clear-activities", "login", "logout", "whoami", "usage", "reset", "migrate", "origins"} {
		fmt.Fprintf(out, "  userctl %s\n", commands[name].usage)
	}
	fmt.Fprintln(out, "\nFlags and environment:")
	fmt.Fprintln(out, "  -b, --backend         CELERIX_BACKEND       memory, file, redis, sql, remote (default file)")
	fmt.Fprintln(out, "  -d, --data-dir        CELERIX_DATA_DIR      file backend directory (default ./data)")
	fmt.Fprintln(out, "  -o, --origin          CELERIX_ORIGIN        storage namespace (default default)")
	fmt.Fprintln(out, "      --store-addr      CELERIX_STORE_ADDR    remote daemon address")
	fmt.Fprintln(out, "      --disable-tls     CELERIX_DISABLE_TLS   plain TCP to the daemon")
	fmt.Fprintln(out, "                        CELERIX_VAULT_KEY     64 hex chars, encrypts stored values")
}

func printJSON(out io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(bytes))
	return nil
}
