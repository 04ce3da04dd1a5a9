package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"account_sync/internal/config"
	"account_sync/internal/importer"
	"account_sync/internal/logbus"
	"account_sync/internal/store/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("import", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "./config.yaml", "path to config.yaml")
	file := flags.StringP("file", "f", "", "account dump to import (required)")
	separator := flags.StringP("separator", "s", "|", "field separator")
	fields := flags.String("fields", "", "comma separated field names by column, e.g. login,plainPassword,,email")
	mapping := flags.String("mapping", "", `explicit JSON mapping, e.g. [{"fieldName":"login","position":0}]`)
	role := flags.String("role", "fb", "account kind: fb or purchased")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	mappings, err := buildMappings(*fields, *mapping)
	if err != nil {
		return err
	}
	r, err := parseRole(*role)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	content, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus := logbus.NewWithLogger(50, logbus.NewLogger(cfg.Log.Level, true))
	defer bus.Close()

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()

	res := importer.NewBatcher(store, bus, nil).Import(ctx, importer.Request{
		Content:   string(content),
		Separator: *separator,
		Mappings:  mappings,
		Role:      r,
		Source:    filepath.Base(*file),
	})
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	return nil
}

// buildMappings accepts either the JSON form used by the HTTP API or a
// positional list where empty entries skip a column.
func buildMappings(fields, raw string) ([]importer.FieldMapping, error) {
	switch {
	case raw != "" && fields != "":
		return nil, fmt.Errorf("use either --fields or --mapping")
	case raw != "":
		return importer.ParseMappings(raw)
	case fields == "":
		fields = importer.FieldLogin + "," + importer.FieldPlainPassword
	}
	var out []importer.FieldMapping
	for i, name := range strings.Split(fields, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, importer.FieldMapping{FieldName: name, Position: i})
	}
	if err := importer.ValidateMappings(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRole(v string) (importer.Role, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "fb", "fb-account", "":
		return importer.RoleFBAccount, nil
	case "purchased", "purchased-account":
		return importer.RolePurchased, nil
	}
	return 0, fmt.Errorf("unknown role %q", v)
}
