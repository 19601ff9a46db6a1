package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kadirbelkuyu/dbxfer/internal/app"
	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/profiles"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

const appName = "Database Transfer in Dependency Order"

const asciiBanner = `
 ██████╗ ██████╗ ██╗  ██╗███████╗███████╗██████╗
 ██╔══██╗██╔══██╗╚██╗██╔╝██╔════╝██╔════╝██╔══██╗
 ██║  ██║██████╔╝ ╚███╔╝ █████╗  █████╗  ██████╔╝
 ██║  ██║██╔══██╗ ██╔██╗ ██╔══╝  ██╔══╝  ██╔══██╗
 ██████╔╝██████╔╝██╔╝ ██╗██║     ███████╗██║  ██║
 ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚═╝     ╚══════╝╚═╝  ╚═╝
`

var rootCmd = &cobra.Command{
	Use:   "dbxfer",
	Short: "Copy tables between databases in foreign key order",
	Long:  `A CLI that reads a source schema, orders its tables by their foreign keys, creates them on the target and copies the rows in batches. Works with PostgreSQL, MySQL/MariaDB and SQLite.`,
	RunE:  runInteractive,
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Copy every table of a schema to another database",
	RunE:  runTransfer,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run the transfers listed in a plan file",
	RunE:  runPlan,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the reverse-engineered table model as YAML",
	RunE:  runInspect,
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the order in which tables would be created",
	RunE:  runOrder,
}

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch the guided interactive workflow",
	RunE:  runInteractive,
}

var (
	sourceConfigPath string
	targetConfigPath string
	configPath       string
	planPath         string
	outputPath       string
	schemaName       string
	reportFile       string
	reportMongo      string
	planWorkers      int
	noProgress       bool
	verbose          bool
	settings         config.TransferConfig

	// stop is set by the first SIGINT/SIGTERM.
	stop = &transfer.StopFlag{}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")

	transferCmd.Flags().StringVar(&sourceConfigPath, "source-config", "", "Source datasource: profile name or configuration file")
	transferCmd.Flags().StringVar(&targetConfigPath, "target-config", "", "Target datasource: profile name or configuration file")
	transferCmd.Flags().StringVar(&settings.SourceSchema, "source-schema", "", "Schema to read from (driver default when empty)")
	transferCmd.Flags().StringVar(&settings.TargetSchema, "target-schema", "", "Schema to write to (driver default when empty)")
	transferCmd.Flags().IntVar(&settings.BatchSize, "batch-size", config.DefaultBatchSize, "Rows per committed batch")
	transferCmd.Flags().StringSliceVar(&settings.Tables, "tables", nil, "Only copy these tables")
	transferCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Log table events instead of drawing a progress bar")
	transferCmd.MarkFlagRequired("source-config")
	transferCmd.MarkFlagRequired("target-config")

	for _, cmd := range []*cobra.Command{transferCmd, planCmd} {
		cmd.Flags().StringVar(&reportFile, "report-file", "", "Write a YAML report; %s is replaced by the run ID")
		cmd.Flags().StringVar(&reportMongo, "report-mongo-uri", "", "Store the report in MongoDB (URI or mongo profile name)")
	}

	planCmd.Flags().StringVar(&planPath, "file", "", "Path to the plan file")
	planCmd.Flags().IntVar(&planWorkers, "workers", 0, "Jobs to run at once (overrides the plan)")
	planCmd.MarkFlagRequired("file")

	for _, cmd := range []*cobra.Command{inspectCmd, orderCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "Datasource: profile name or configuration file")
		cmd.Flags().StringVar(&schemaName, "schema", "", "Schema to read (driver default when empty)")
		cmd.MarkFlagRequired("config")
	}
	inspectCmd.Flags().StringVar(&outputPath, "output", "", "Write the model to this file instead of stdout")

	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(interactiveCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watchSignals(stop, cancel)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// watchSignals asks running transfers to stop after the first signal and
// cancels the context on the second.
func watchSignals(stop *transfer.StopFlag, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	<-signals
	fmt.Fprintln(os.Stderr, "\nStopping after the current row. Press Ctrl+C again to abort.")
	stop.Stop()

	<-signals
	cancel()
}

func newService() (*app.Service, *profiles.Manager, error) {
	manager, err := profiles.FromSettings()
	if err != nil {
		return nil, nil, err
	}
	return app.NewService(manager, logger.NewLogger(verbose)), manager, nil
}

func runInteractive(cmd *cobra.Command, args []string) error {
	svc, manager, err := newService()
	if err != nil {
		return err
	}
	application := app.NewApplication(os.Stdin, os.Stdout, printBanner, manager, svc, stop)
	return application.RunInteractive(cmd.Context())
}

func runTransfer(cmd *cobra.Command, args []string) error {
	svc, manager, err := newService()
	if err != nil {
		return err
	}

	sourceConfig, err := manager.Load(sourceConfigPath)
	if err != nil {
		return fmt.Errorf("cannot load source config: %w", err)
	}
	targetConfig, err := manager.Load(targetConfigPath)
	if err != nil {
		return fmt.Errorf("cannot load target config: %w", err)
	}

	ctx := cmd.Context()
	rep, err := svc.Transfer(ctx, app.TransferRequest{
		Source:   sourceConfig,
		Target:   targetConfig,
		Settings: settings,
	}, app.Options{
		Progress:    !noProgress,
		ReportFile:  reportFile,
		ReportMongo: reportMongo,
		Stop:        stop,
	})
	if rep != nil {
		fmt.Printf("Transfer %s: %d rows across %d tables (run %s)\n", rep.State, rep.Rows, len(rep.Tables), rep.RunID)
	}
	return err
}

func runPlan(cmd *cobra.Command, args []string) error {
	svc, _, err := newService()
	if err != nil {
		return err
	}

	plan, err := config.LoadPlan(planPath)
	if err != nil {
		return err
	}
	if planWorkers > 0 {
		plan.Workers = planWorkers
	}

	ctx := cmd.Context()
	reports, err := svc.RunPlan(ctx, plan, app.Options{
		ReportFile:  reportFile,
		ReportMongo: reportMongo,
		Stop:        stop,
	})
	for i, rep := range reports {
		if rep == nil {
			fmt.Printf("%-20s not started\n", plan.Jobs[i].Name)
			continue
		}
		fmt.Printf("%-20s %-9s %d rows across %d tables\n", plan.Jobs[i].Name, rep.State, rep.Rows, len(rep.Tables))
	}
	return err
}

func runInspect(cmd *cobra.Command, args []string) error {
	svc, manager, err := newService()
	if err != nil {
		return err
	}
	cfg, err := manager.Load(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	if outputPath == "" {
		return svc.Inspect(cmd.Context(), cfg, schemaName, os.Stdout)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := svc.Inspect(cmd.Context(), cfg, schemaName, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runOrder(cmd *cobra.Command, args []string) error {
	svc, manager, err := newService()
	if err != nil {
		return err
	}
	cfg, err := manager.Load(configPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	return svc.Order(cmd.Context(), cfg, schemaName, os.Stdout)
}

func printBanner() {
	fmt.Print(asciiBanner)
	fmt.Println(appName)
	fmt.Println(strings.Repeat("-", len(appName)))
}
