package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/driftdb/pgwasm/bridge"
	"github.com/driftdb/pgwasm/engine"
	"github.com/driftdb/pgwasm/wire"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to engine wasm file")
		database    = flag.String("db", "", "Database name (defaults to user)")
		user        = flag.String("user", "postgres", "User name")
		password    = flag.String("password", "", "Password for cleartext or md5 authentication")
		sqlStmt     = flag.String("sql", "", "Statement to execute (non-interactive)")
		memPages    = flag.Uint("mem", 0, "Memory limit in 64KiB pages (0 = engine default)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: pgwasm -wasm <engine.wasm> -sql <statement>")
		fmt.Fprintln(os.Stderr, "       pgwasm -wasm <engine.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	// With no statement given, a terminal session drops into the TUI.
	if *sqlStmt == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		*interactive = true
	}

	cfg := sessionConfig{
		wasmFile: *wasmFile,
		database: *database,
		user:     *user,
		password: *password,
		memPages: uint32(*memPages),
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *sqlStmt); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type sessionConfig struct {
	wasmFile string
	database string
	user     string
	password string
	memPages uint32

	// onNotice overrides the default stderr notice sink.
	onNotice func(wire.ErrorFields)
}

// openSession loads the engine module and runs connection startup.
func openSession(ctx context.Context, cfg sessionConfig) (*bridge.Bridge, error) {
	data, err := os.ReadFile(cfg.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	eng, err := engine.Open(ctx, data, &engine.Config{
		Name:             cfg.wasmFile,
		MemoryLimitPages: cfg.memPages,
		Stderr:           os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	onNotice := cfg.onNotice
	if onNotice == nil {
		onNotice = func(f wire.ErrorFields) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", f.Severity, f.Message)
		}
	}
	b, err := bridge.Open(ctx, eng, bridge.Config{
		Database: cfg.database,
		User:     cfg.user,
		Password: cfg.password,
		OnNotice: onNotice,
	})
	if err != nil {
		eng.Close(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	return b, nil
}

func run(cfg sessionConfig, sql string) error {
	ctx := context.Background()

	b, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	if v := b.ParameterStatus("server_version"); v != "" {
		fmt.Printf("Engine version: %s\n\n", v)
	}

	res, err := b.Query(ctx, sql)
	if err != nil {
		return err
	}
	fmt.Print(renderResult(res))
	return nil
}

// renderResult formats a result as an aligned text table followed by the
// affected-row count.
func renderResult(res *bridge.Result) string {
	if len(res.Fields) == 0 {
		return fmt.Sprintf("OK (%d rows affected)\n", res.AffectedRows)
	}

	cols := make([]string, len(res.Fields))
	widths := make([]int, len(res.Fields))
	for i, f := range res.Fields {
		cols[i] = f.Name
		widths[i] = len(f.Name)
	}
	// Columns missing from the description still render, after the named ones.
	extra := map[string]bool{}
	for _, row := range res.Rows {
		for name := range row {
			if !extra[name] && !containsString(cols, name) {
				extra[name] = true
			}
		}
	}
	extraNames := make([]string, 0, len(extra))
	for name := range extra {
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		cols = append(cols, name)
		widths = append(widths, len(name))
	}

	cells := make([][]string, len(res.Rows))
	for r, row := range res.Rows {
		cells[r] = make([]string, len(cols))
		for c, name := range cols {
			cells[r][c] = renderValue(row[name])
			if len(cells[r][c]) > widths[c] {
				widths[c] = len(cells[r][c])
			}
		}
	}

	var b strings.Builder
	for c, name := range cols {
		if c > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "%-*s", widths[c], name)
	}
	b.WriteByte('\n')
	for c := range cols {
		if c > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", widths[c]))
	}
	b.WriteByte('\n')
	for _, row := range cells {
		for c, v := range row {
			if c > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%-*s", widths[c], v)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "(%d rows)\n", len(res.Rows))
	return b.String()
}

func renderValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
