package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/profiles"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
)

// Application is the prompt-driven front end over Service.
type Application struct {
	reader         *bufio.Reader
	out            io.Writer
	printBanner    func()
	profileManager *profiles.Manager
	service        *Service
	stop           *transfer.StopFlag
}

func NewApplication(r io.Reader, out io.Writer, printBanner func(), manager *profiles.Manager, service *Service, stop *transfer.StopFlag) *Application {
	if r == nil {
		r = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	var reader *bufio.Reader
	if br, ok := r.(*bufio.Reader); ok {
		reader = br
	} else {
		reader = bufio.NewReader(r)
	}

	return &Application{
		reader:         reader,
		out:            out,
		printBanner:    printBanner,
		profileManager: manager,
		service:        service,
		stop:           stop,
	}
}

func (a *Application) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *Application) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *Application) RunInteractive(ctx context.Context) error {
	if a.printBanner != nil {
		a.printBanner()
	}
	a.println("Interactive mode is ready. Press Ctrl+C or choose option 5 to exit.")

	for {
		a.println()
		a.println("Select an operation:")
		a.println("  1) Transfer tables between databases")
		a.println("  2) Inspect a schema")
		a.println("  3) Show table creation order")
		a.println("  4) List saved datasources")
		a.println("  5) Exit")

		a.printf("\nChoice: ")
		choice, err := a.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.exit()
				return nil
			}
			return err
		}

		var action func(context.Context) error
		var label string
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "1", "transfer":
			action, label = a.handleTransfer, "Transfer"
		case "2", "inspect":
			action, label = a.handleInspect, "Inspect"
		case "3", "order":
			action, label = a.handleOrder, "Ordering"
		case "4", "list":
			action, label = a.handleList, "Listing"
		case "5", "exit", "quit", "q":
			a.exit()
			return nil
		default:
			a.println("Invalid selection. Try again.")
			continue
		}

		if err := action(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				a.exit()
				return nil
			}
			a.printf("%s failed: %v\n", label, err)
		}
	}
}

func (a *Application) exit() {
	a.println()
	a.println("Exiting interactive mode.")
}

func (a *Application) handleTransfer(ctx context.Context) error {
	a.println()
	a.println("Transfer tables between databases")

	sourceCfg, err := a.loadOrPromptConfig("source")
	if err != nil {
		return err
	}

	targetCfg, err := a.loadOrPromptConfig("target")
	if err != nil {
		return err
	}

	settings, opts, err := a.promptTransferOptions()
	if err != nil {
		return err
	}
	opts.Stop = a.stop

	rep, err := a.service.Transfer(ctx, TransferRequest{Source: sourceCfg, Target: targetCfg, Settings: settings}, opts)
	if rep != nil {
		a.printSummary(rep.State, rep.Rows, len(rep.Tables))
	}
	return err
}

func (a *Application) printSummary(state string, rows, tables int) {
	a.println()
	a.printf("Transfer %s: %d rows across %d tables.\n", state, rows, tables)
}

func (a *Application) handleInspect(ctx context.Context) error {
	a.println()
	a.println("Inspect a schema")

	cfg, schemaName, err := a.promptSchemaTarget()
	if err != nil {
		return err
	}
	return a.service.Inspect(ctx, cfg, schemaName, a.out)
}

func (a *Application) handleOrder(ctx context.Context) error {
	a.println()
	a.println("Show table creation order")

	cfg, schemaName, err := a.promptSchemaTarget()
	if err != nil {
		return err
	}
	return a.service.Order(ctx, cfg, schemaName, a.out)
}

func (a *Application) promptSchemaTarget() (*config.Config, string, error) {
	cfg, err := a.loadOrPromptConfig("database")
	if err != nil {
		return nil, "", err
	}
	schemaName, err := a.promptString("Schema (leave blank for the default)", false)
	if err != nil {
		return nil, "", err
	}
	return cfg, schemaName, nil
}

func (a *Application) handleList(context.Context) error {
	saved, err := a.profileManager.List("")
	if err != nil {
		return err
	}

	a.println()
	if len(saved) == 0 {
		a.printf("No saved datasources in %s\n", a.profileManager.Directory())
		return nil
	}
	a.printf("Saved datasources in %s:\n", a.profileManager.Directory())
	for i, p := range saved {
		a.printf("  %d) %s  %s\n", i+1, p.Name, p.Location)
	}
	return nil
}

func (a *Application) promptString(label string, required bool) (string, error) {
	for {
		a.printf("%s: ", label)
		input, err := a.readLine()
		if err != nil {
			return "", err
		}
		if input == "" && required {
			a.println("Please provide a value.")
			continue
		}
		return input, nil
	}
}

func (a *Application) promptYesNo(question string, defaultValue bool) (bool, error) {
	suffix := "(y/N)"
	if defaultValue {
		suffix = "(Y/n)"
	}

	for {
		a.printf("%s %s ", question, suffix)
		input, err := a.readLine()
		if err != nil {
			return false, err
		}

		if input == "" {
			return defaultValue, nil
		}

		switch strings.ToLower(input) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			a.println("Please answer with y or n.")
		}
	}
}

func (a *Application) promptInt(question string, defaultValue int) (int, error) {
	for {
		a.printf("%s [%d]: ", question, defaultValue)
		input, err := a.readLine()
		if err != nil {
			return 0, err
		}

		if input == "" {
			return defaultValue, nil
		}

		value, err := strconv.Atoi(input)
		if err != nil {
			a.println("Please enter a valid number.")
			continue
		}

		return value, nil
	}
}

func (a *Application) promptStringWithDefault(label, defaultValue string) (string, error) {
	for {
		if defaultValue != "" {
			a.printf("%s [%s]: ", label, defaultValue)
		} else {
			a.printf("%s: ", label)
		}

		input, err := a.readLine()
		if err != nil {
			return "", err
		}

		if input == "" {
			if defaultValue != "" {
				return defaultValue, nil
			}
			a.println("Please provide a value.")
			continue
		}

		return input, nil
	}
}

func (a *Application) loadOrPromptConfig(label string) (*config.Config, error) {
	for {
		a.printf("\nConfigure %s connection\n", label)

		if cfg, ok, err := a.selectProfile(); err != nil {
			return nil, err
		} else if ok {
			return cfg, nil
		}

		dbType, err := a.promptDatabaseType()
		if err != nil {
			return nil, err
		}

		cfg, err := a.promptManualConfig(dbType, label)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, err
			}
			a.printf("Error: %v\n", err)
			continue
		}

		if err := a.persistConfig(cfg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, err
			}
			a.printf("Warning: failed to save config: %v\n", err)
		}

		return cfg, nil
	}
}

func (a *Application) promptManualConfig(dbType, label string) (*config.Config, error) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: dbType,
		},
	}

	switch dbType {
	case config.TypePostgres, config.TypeMySQL:
		name, port, defaultDB := "PostgreSQL", 5432, "postgres"
		if dbType == config.TypeMySQL {
			name, port, defaultDB = "MySQL", 3306, "mysql"
		}
		a.printf("\nEnter %s connection details for %s database:\n", name, label)

		host, err := a.promptStringWithDefault("Host", "localhost")
		if err != nil {
			return nil, err
		}
		port, err = a.promptInt("Port", port)
		if err != nil {
			return nil, err
		}
		dbName, err := a.promptStringWithDefault("Database name", defaultDB)
		if err != nil {
			return nil, err
		}
		username, err := a.promptString("Username (leave blank for none)", false)
		if err != nil {
			return nil, err
		}
		password, err := a.promptString("Password (leave blank for none)", false)
		if err != nil {
			return nil, err
		}

		cfg.Database.Host = host
		cfg.Database.Port = port
		cfg.Database.Database = dbName
		cfg.Database.Username = username
		cfg.Database.Password = password

		if dbType == config.TypePostgres {
			sslMode, err := a.promptStringWithDefault("SSL mode", "disable")
			if err != nil {
				return nil, err
			}
			cfg.Database.SSLMode = strings.TrimSpace(sslMode)
		}

	case config.TypeSQLite:
		a.printf("\nEnter SQLite details for %s database:\n", label)

		path, err := a.promptString("Database file", true)
		if err != nil {
			return nil, err
		}
		cfg.Database.Path = path

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}

	cfg.Normalize()
	return cfg, nil
}

func (a *Application) promptDatabaseType() (string, error) {
	for {
		a.println()
		a.println("Select database type:")
		a.println("1. PostgreSQL")
		a.println("2. MySQL / MariaDB")
		a.println("3. SQLite")
		a.printf("Selection: ")

		input, err := a.readLine()
		if err != nil {
			return "", err
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "1", "postgres", "postgresql":
			return config.TypePostgres, nil
		case "2", "mysql", "mariadb":
			return config.TypeMySQL, nil
		case "3", "sqlite", "sqlite3":
			return config.TypeSQLite, nil
		default:
			a.println("Please choose 1, 2 or 3.")
		}
	}
}

func (a *Application) promptTransferOptions() (config.TransferConfig, Options, error) {
	var (
		settings config.TransferConfig
		opts     Options
		err      error
	)

	if settings.SourceSchema, err = a.promptString("Source schema (leave blank for the default)", false); err != nil {
		return settings, opts, err
	}
	if settings.TargetSchema, err = a.promptString("Target schema (leave blank for the default)", false); err != nil {
		return settings, opts, err
	}

	tables, err := a.promptString("Tables to copy, comma separated (leave blank for all)", false)
	if err != nil {
		return settings, opts, err
	}
	settings.Tables = splitList(tables)

	if settings.BatchSize, err = a.promptInt("Batch size", config.DefaultBatchSize); err != nil {
		return settings, opts, err
	}

	if opts.Progress, err = a.promptYesNo("Show a progress bar?", true); err != nil {
		return settings, opts, err
	}
	if opts.ReportFile, err = a.promptString("Report file (leave blank to skip)", false); err != nil {
		return settings, opts, err
	}

	return settings, opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *Application) readLine() (string, error) {
	line, err := a.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *Application) selectProfile() (*config.Config, bool, error) {
	saved, err := a.profileManager.List("")
	if err != nil {
		return nil, false, err
	}

	var usable []profiles.Profile
	for _, p := range saved {
		if p.Type != config.TypeMongo {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, false, nil
	}

	for {
		a.println("Saved datasources:")
		for i, profile := range usable {
			a.printf("  %d) %s (%s)\n", i+1, profile.Name, profile.Location)
		}
		a.println("  n) Create a new datasource")

		choice, err := a.promptString("Select a datasource (number) or 'n'", true)
		if err != nil {
			return nil, false, err
		}

		choice = strings.ToLower(strings.TrimSpace(choice))
		if choice == "n" || choice == "new" {
			return nil, false, nil
		}

		index, err := strconv.Atoi(choice)
		if err != nil || index < 1 || index > len(usable) {
			a.println("Please choose a valid option.")
			continue
		}

		cfg, err := a.profileManager.Load(usable[index-1].Path)
		if err != nil {
			a.printf("Failed to load %s: %v\n", usable[index-1].Name, err)
			continue
		}

		return cfg, true, nil
	}
}

func (a *Application) persistConfig(cfg *config.Config) error {
	save, err := a.promptYesNo("Save this datasource for future use?", true)
	if err != nil || !save {
		return err
	}

	defaultName := fmt.Sprintf("%s-%s", cfg.Database.Type, time.Now().Format("20060102_150405"))
	name, err := a.promptStringWithDefault("Datasource name", defaultName)
	if err != nil {
		return err
	}

	_, err = a.profileManager.Save(name, cfg)
	return err
}
