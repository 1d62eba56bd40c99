package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/config"
	"github.com/kanataki-zwei/pipecraft/internal/dialect"
	"github.com/kanataki-zwei/pipecraft/internal/engine"
	"github.com/kanataki-zwei/pipecraft/internal/exitcodes"
	"github.com/kanataki-zwei/pipecraft/internal/logging"
	"github.com/kanataki-zwei/pipecraft/internal/notify"
	"github.com/kanataki-zwei/pipecraft/internal/progress"
	"github.com/kanataki-zwei/pipecraft/internal/store"
	"github.com/kanataki-zwei/pipecraft/internal/tui"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "pipecraft",
		Usage:   "Declarative table syncs between Postgres and MySQL databases",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "pipecraft.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "",
				Usage: "Log format: text or json",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if c.String("verbosity") != "" {
				cfg.Log.Level = c.String("verbosity")
			}
			if c.String("log-format") != "" {
				cfg.Log.Format = c.String("log-format")
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			logging.SetFormat(cfg.Log.Format)

			c.App.Metadata["config"] = cfg
			return nil
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				st, err := openStore(c)
				if err != nil {
					return err
				}
				defer st.Close()
				return tui.Start(st)
			}
			return cli.ShowAppHelp(c)
		},
		Commands: []*cli.Command{
			connectionCommand(),
			syncCommand(),
			schemasCommand(),
			tablesCommand(),
			runCommand(),
			runsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func appConfig(c *cli.Context) *config.Config {
	return c.App.Metadata["config"].(*config.Config)
}

func openStore(c *cli.Context) (*store.Store, error) {
	return store.Open(appConfig(c).DataDir)
}

func newResolver(c *cli.Context) *engine.Resolver {
	return engine.NewResolver(time.Duration(appConfig(c).ConnectTimeoutSeconds) * time.Second)
}

func connectionCommand() *cli.Command {
	return &cli.Command{
		Name:  "connection",
		Usage: "Manage stored database connections",
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Store a new connection",
				Action: connectionAdd,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Unique connection name"},
					&cli.StringFlag{Name: "dialect", Required: true, Usage: "Database dialect: postgres or mysql"},
					&cli.StringFlag{Name: "host", Required: true, Usage: "Database host"},
					&cli.IntFlag{Name: "port", Usage: "Database port (dialect default if omitted)"},
					&cli.StringFlag{Name: "database", Required: true, Usage: "Database name"},
					&cli.StringFlag{Name: "username", Required: true, Usage: "Database user"},
					&cli.StringFlag{Name: "password", Usage: "Database password (prompted if omitted)"},
					&cli.BoolFlag{Name: "source", Value: true, Usage: "Allow use as a sync source"},
					&cli.BoolFlag{Name: "destination", Value: true, Usage: "Allow use as a sync destination"},
				},
			},
			{
				Name:   "list",
				Usage:  "List stored connections",
				Action: connectionList,
			},
			{
				Name:   "test",
				Usage:  "Test reachability of a stored connection",
				Action: connectionTest,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Connection name"},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete a stored connection (fails if referenced by a sync)",
				Action: connectionDelete,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Connection name"},
				},
			},
		},
	}
}

func connectionAdd(c *cli.Context) error {
	dt, err := dialect.ParseType(c.String("dialect"))
	if err != nil {
		return err
	}
	d, err := dialect.Get(dt)
	if err != nil {
		return err
	}

	port := c.Int("port")
	if port == 0 {
		port = d.DefaultPort()
	}

	password := c.String("password")
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", c.String("username"), c.String("host"))
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = string(raw)
	}

	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	conn := &store.Connection{
		Name:          c.String("name"),
		Dialect:       dt,
		Host:          c.String("host"),
		Port:          port,
		Database:      c.String("database"),
		Username:      c.String("username"),
		Password:      password,
		IsSource:      c.Bool("source"),
		IsDestination: c.Bool("destination"),
	}
	if err := st.CreateConnection(conn); err != nil {
		return err
	}
	fmt.Printf("Saved connection %q (%s %s:%d/%s)\n", conn.Name, conn.Dialect, conn.Host, conn.Port, conn.Database)
	return nil
}

func connectionList(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	conns, err := st.ListConnections()
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Println("No connections found")
		return nil
	}
	fmt.Printf("%-20s %-10s %-30s %-20s %-8s %-8s\n", "Name", "Dialect", "Host", "Database", "Source", "Dest")
	for _, conn := range conns {
		fmt.Printf("%-20s %-10s %-30s %-20s %-8v %-8v\n",
			conn.Name, conn.Dialect,
			fmt.Sprintf("%s:%d", conn.Host, conn.Port),
			conn.Database, conn.IsSource, conn.IsDestination)
	}
	return nil
}

func connectionTest(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	conn, err := st.ConnectionByName(c.String("name"))
	if err != nil {
		return err
	}

	result := newResolver(c).Test(context.Background(), conn)
	if result.OK {
		fmt.Printf("OK: %s\n", result.Message)
		return nil
	}
	return cli.Exit(fmt.Sprintf("FAILED: %s", result.Message), 1)
}

func connectionDelete(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	conn, err := st.ConnectionByName(c.String("name"))
	if err != nil {
		return err
	}
	if err := st.DeleteConnection(conn.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted connection %q\n", conn.Name)
	return nil
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Manage sync definitions",
		Subcommands: []*cli.Command{
			{
				Name:   "add",
				Usage:  "Define a new sync",
				Action: syncAdd,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Unique sync name"},
					&cli.StringFlag{Name: "description", Usage: "Optional description"},
					&cli.StringFlag{Name: "source", Required: true, Usage: "Source connection name"},
					&cli.StringFlag{Name: "source-table", Required: true, Usage: "Source table (optionally schema-qualified)"},
					&cli.StringFlag{Name: "dest", Required: true, Usage: "Destination connection name"},
					&cli.StringFlag{Name: "dest-schema", Usage: "Destination schema (optional)"},
					&cli.StringFlag{Name: "dest-table", Required: true, Usage: "Destination table"},
				},
			},
			{
				Name:   "list",
				Usage:  "List sync definitions",
				Action: syncList,
			},
			{
				Name:   "delete",
				Usage:  "Delete a sync and its run history",
				Action: syncDelete,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true, Usage: "Sync name"},
				},
			},
		},
	}
}

func syncAdd(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	src, err := st.ConnectionByName(c.String("source"))
	if err != nil {
		return err
	}
	dest, err := st.ConnectionByName(c.String("dest"))
	if err != nil {
		return err
	}

	sy := &store.Sync{
		Name:               c.String("name"),
		Description:        c.String("description"),
		SourceConnectionID: src.ID,
		SourceTable:        c.String("source-table"),
		DestConnectionID:   dest.ID,
		DestSchema:         c.String("dest-schema"),
		DestTable:          c.String("dest-table"),
		WriteMode:          store.TruncateInsert,
	}
	if err := st.CreateSync(sy); err != nil {
		return err
	}
	fmt.Printf("Saved sync %q: %s/%s -> %s/%s\n",
		sy.Name, src.Name, sy.SourceTable, dest.Name, sy.DestTable)
	return nil
}

func syncList(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	syncs, err := st.ListSyncs()
	if err != nil {
		return err
	}
	if len(syncs) == 0 {
		fmt.Println("No syncs found")
		return nil
	}
	fmt.Printf("%-20s %-25s %-25s %-15s\n", "Name", "Source table", "Dest table", "Write mode")
	for _, sy := range syncs {
		destTable := sy.DestTable
		if sy.DestSchema != "" {
			destTable = sy.DestSchema + "." + sy.DestTable
		}
		fmt.Printf("%-20s %-25s %-25s %-15s\n", sy.Name, sy.SourceTable, destTable, sy.WriteMode)
	}
	return nil
}

func syncDelete(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	sy, err := st.SyncByName(c.String("name"))
	if err != nil {
		return err
	}
	if err := st.DeleteSync(sy.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted sync %q\n", sy.Name)
	return nil
}

func schemasCommand() *cli.Command {
	return &cli.Command{
		Name:  "schemas",
		Usage: "List schemas visible through a connection",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "connection", Required: true, Usage: "Connection name"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			conn, err := st.ConnectionByName(c.String("connection"))
			if err != nil {
				return err
			}

			introspector := engine.NewIntrospector(newResolver(c))
			schemas, err := introspector.ListSchemas(context.Background(), conn)
			if err != nil {
				return err
			}
			for _, s := range schemas {
				fmt.Println(s)
			}
			return nil
		},
	}
}

func tablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "List tables in a schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "connection", Required: true, Usage: "Connection name"},
			&cli.StringFlag{Name: "schema", Value: "public", Usage: "Schema to list (ignored for MySQL)"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			conn, err := st.ConnectionByName(c.String("connection"))
			if err != nil {
				return err
			}

			introspector := engine.NewIntrospector(newResolver(c))
			tables, err := introspector.ListTables(context.Background(), conn, c.String("schema"))
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Printf("%s.%s\n", t.Schema, t.Table)
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Execute a sync to a terminal state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sync", Required: true, Usage: "Sync name"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			sy, err := st.SyncByName(c.String("sync"))
			if err != nil {
				return err
			}

			executor := engine.New(st, st, st, newResolver(c))
			tracker := progress.New()
			executor.SetProgress(tracker.Update)

			run, err := executor.Execute(context.Background(), sy)
			tracker.Finish()

			if run != nil {
				notifier := notify.New(&appConfig(c).Slack)
				if notifyErr := notifier.RunCompleted(sy.Name, run); notifyErr != nil {
					logging.Warn("Failed to send notification: %v", notifyErr)
				}
			}

			if err != nil {
				if run != nil {
					return cli.Exit(fmt.Sprintf("\nrun %d failed: %s", run.ID, run.ErrorMessage),
						exitcodes.FromError(err))
				}
				return cli.Exit(err.Error(), exitcodes.FromError(err))
			}
			fmt.Printf("\nRun %d succeeded: %d rows\n", run.ID, *run.RowCount)
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Show run history",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sync", Usage: "Only show runs for this sync"},
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum runs to show"},
		},
		Action: func(c *cli.Context) error {
			st, err := openStore(c)
			if err != nil {
				return err
			}
			defer st.Close()

			var syncID int64
			if name := c.String("sync"); name != "" {
				sy, err := st.SyncByName(name)
				if err != nil {
					return err
				}
				syncID = sy.ID
			}

			runs, err := st.ListRuns(syncID, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs found")
				return nil
			}

			syncNames := make(map[int64]string)
			if syncs, err := st.ListSyncs(); err == nil {
				for _, sy := range syncs {
					syncNames[sy.ID] = sy.Name
				}
			}

			fmt.Printf("%-6s %-20s %-9s %-20s %-10s %-9s %s\n",
				"Run", "Sync", "Status", "Started", "Duration", "Rows", "Error")
			for _, r := range runs {
				duration := "-"
				if r.EndedAt != nil {
					duration = r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				rowCount := "-"
				if r.RowCount != nil {
					rowCount = fmt.Sprintf("%d", *r.RowCount)
				}
				errMsg := strings.ReplaceAll(r.ErrorMessage, "\n", " ")
				if len(errMsg) > 60 {
					errMsg = errMsg[:57] + "..."
				}
				fmt.Printf("%-6d %-20s %-9s %-20s %-10s %-9s %s\n",
					r.ID, syncNames[r.SyncID], r.Status,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					duration, rowCount, errMsg)
			}
			return nil
		},
	}
}
