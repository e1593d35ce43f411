// Command graphsync inspects entity declaration files and fetches entity
// graphs from a database.
//
//	graphsync schema [-entity name] declarations.yaml
//	graphsync sql [-entity name] declarations.yaml
//	graphsync watch declarations.yaml
//	graphsync fetch -entity name [-where json] [-sort a,-b] [-limit n] [-skip n] declarations.yaml
//
// Connection settings are read from the file named by -config and from the
// GRAPHSYNC_DIALECT, GRAPHSYNC_DSN, GRAPHSYNC_SLOW_QUERY and GRAPHSYNC_DEBUG
// environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/syssam/graphsync"
	"github.com/syssam/graphsync/compiler/load"
	"github.com/syssam/graphsync/criteria"
	"github.com/syssam/graphsync/dialect"
)

const usage = `usage: graphsync [-config file] <command> [flags] declarations.yaml

commands:
  schema   print the JSON schema of the declared entities
  sql      print the compiled statements of the declared entities
  watch    recompile the declarations whenever the file changes
  fetch    fetch entity graphs and print them as JSON
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "graphsync:", err)
		os.Exit(1)
	}
}

type command struct {
	cfg     *Config
	logger  *slog.Logger
	adapter dialect.Adapter
	path    string
	stdout  io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("graphsync", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "connection settings file (yaml)")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		return errUsage
	}
	name, args := global.Arg(0), global.Args()[1:]

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	entity := fs.String("entity", "", "entity name (default: every entity)")
	var (
		where *string
		sort  *string
		limit *int
		skip  *int
	)
	switch name {
	case "schema", "sql", "watch":
	case "fetch":
		where = fs.String("where", "", "criteria as a JSON object")
		sort = fs.String("sort", "", "comma separated properties, prefixed with - for descending")
		limit = fs.Int("limit", 0, "maximum number of rows")
		skip = fs.Int("skip", 0, "number of rows to skip")
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: %s needs one declaration file", errUsage, name)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	if name == "fetch" && cfg.DSN == "" {
		return errors.New("fetch needs a DSN (GRAPHSYNC_DSN)")
	}
	adapter, closer, err := openAdapter(cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	c := &command{cfg: cfg, logger: logger, adapter: adapter, path: fs.Arg(0), stdout: stdout}
	switch name {
	case "schema":
		return c.schema(*entity)
	case "sql":
		return c.sql(*entity)
	case "watch":
		return c.watch(ctx, *entity)
	default:
		crit, err := parseCriteria(*where, *sort, *limit, *skip)
		if err != nil {
			return err
		}
		return c.fetch(ctx, *entity, crit)
	}
}

func (c *command) mapper() (*graphsync.Mapper, error) {
	m := graphsync.New(c.adapter, graphsync.WithLogger(c.logger))
	if _, err := load.Load(m, c.path); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *command) entities(m *graphsync.Mapper, name string) ([]*graphsync.Entity, error) {
	if name == "" {
		return m.Entities(), nil
	}
	e, ok := m.Entity(name)
	if !ok {
		return nil, fmt.Errorf("entity %q is not declared in %s", name, c.path)
	}
	return []*graphsync.Entity{e}, nil
}

func (c *command) schema(name string) error {
	m, err := c.mapper()
	if err != nil {
		return err
	}
	list, err := c.entities(m, name)
	if err != nil {
		return err
	}
	out := make(map[string]any, len(list))
	for _, e := range list {
		out[e.Name()] = e.Schema()
	}
	return c.print(out)
}

func (c *command) sql(name string) error {
	m, err := c.mapper()
	if err != nil {
		return err
	}
	list, err := c.entities(m, name)
	if err != nil {
		return err
	}
	for _, e := range list {
		g := e.Graph()
		fmt.Fprintf(c.stdout, "-- %s: select\n%s;\n", e.Name(), g.Root.Select)
		for _, t := range g.Tables() {
			fmt.Fprintf(c.stdout, "-- %s: insert\n%s;\n", t.Table, t.Insert)
			fmt.Fprintf(c.stdout, "-- %s: update\n%s;\n", t.Table, t.Update)
			fmt.Fprintf(c.stdout, "-- %s: delete\n%s;\n", t.Table, t.Delete)
		}
		for _, w := range g.Warnings {
			fmt.Fprintf(c.stdout, "-- %s: unlinked %s\n", e.Name(), w)
		}
	}
	return nil
}

func (c *command) fetch(ctx context.Context, name string, crit *criteria.Criteria) error {
	if name == "" {
		return fmt.Errorf("%w: fetch needs -entity", errUsage)
	}
	m, err := c.mapper()
	if err != nil {
		return err
	}
	list, err := c.entities(m, name)
	if err != nil {
		return err
	}
	recs, err := list[0].Fetch(ctx, crit)
	if err != nil {
		return err
	}
	return c.print(recs)
}

func (c *command) print(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCriteria(where, sort string, limit, skip int) (*criteria.Criteria, error) {
	c := &criteria.Criteria{Limit: limit, Skip: skip}
	if where != "" {
		if err := json.Unmarshal([]byte(where), &c.Where); err != nil {
			return nil, fmt.Errorf("parse -where: %w", err)
		}
	}
	for _, f := range strings.Split(sort, ",") {
		switch f = strings.TrimSpace(f); {
		case f == "":
		case strings.HasPrefix(f, "-"):
			c.Sort = append(c.Sort, criteria.Desc(f[1:]))
		default:
			c.Sort = append(c.Sort, criteria.Asc(f))
		}
	}
	return c, nil
}
