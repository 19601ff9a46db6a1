package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/database"
	"github.com/kadirbelkuyu/dbxfer/internal/model"
	"github.com/kadirbelkuyu/dbxfer/internal/profiles"
	"github.com/kadirbelkuyu/dbxfer/internal/report"
	"github.com/kadirbelkuyu/dbxfer/internal/transfer"
	"github.com/kadirbelkuyu/dbxfer/pkg/logger"
)

func sqliteConfig(path string) *config.Config {
	cfg := &config.Config{Database: config.DatabaseConfig{Type: "sqlite", Path: path}}
	cfg.Normalize()
	return cfg
}

func seed(t *testing.T, cfg *config.Config, statements ...string) {
	t.Helper()
	conn, err := database.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	for _, stmt := range statements {
		_, err := conn.Conn.ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

func seedShop(t *testing.T, cfg *config.Config) {
	seed(t, cfg,
		`CREATE TABLE city (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE address (id INTEGER PRIMARY KEY, city_id INTEGER REFERENCES city(id), region_id INTEGER REFERENCES region(id))`,
		`INSERT INTO city VALUES (1, 'Sofia'), (2, 'Varna')`,
		`INSERT INTO address VALUES (1, 1, NULL)`,
	)
}

func newTestService(t *testing.T) (*Service, string) {
	dir := t.TempDir()
	return NewService(profiles.NewManager(filepath.Join(dir, "profiles")), logger.Discard()), dir
}

func TestTransferWritesReport(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	target := sqliteConfig(filepath.Join(dir, "target.db"))
	seedShop(t, source)

	reportPath := filepath.Join(dir, "reports", "%s.yaml")
	rep, err := svc.Transfer(context.Background(), TransferRequest{
		Job:    "shop",
		Source: source,
		Target: target,
	}, Options{ReportFile: reportPath})
	require.NoError(t, err)

	assert.Equal(t, "finished", rep.State)
	assert.Equal(t, "shop", rep.Job)
	assert.Equal(t, []string{"city", "address"}, rep.Order)
	assert.Equal(t, []string{"region"}, rep.External)
	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, config.DefaultBatchSize, rep.BatchSize)

	loaded, err := report.LoadFile(filepath.Join(dir, "reports", rep.RunID+".yaml"))
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, loaded.RunID)
	assert.Equal(t, "copied", loaded.Table("city").Status)
}

func TestTransferHonoursEnvironment(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	seedShop(t, source)

	t.Setenv("DBXFER_BATCH_SIZE", "1")
	rep, err := svc.Transfer(context.Background(), TransferRequest{
		Source: source,
		Target: sqliteConfig(filepath.Join(dir, "target.db")),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.BatchSize)

	t.Setenv("DBXFER_BATCH_SIZE", "lots")
	rep, err = svc.Transfer(context.Background(), TransferRequest{
		Source:   source,
		Target:   sqliteConfig(filepath.Join(dir, "other.db")),
		Settings: config.TransferConfig{BatchSize: 50},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 50, rep.BatchSize, "malformed override is ignored")
}

func TestTransferStopFlag(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	seedShop(t, source)

	stop := &transfer.StopFlag{}
	stop.Stop()
	rep, err := svc.Transfer(context.Background(), TransferRequest{
		Source: source,
		Target: sqliteConfig(filepath.Join(dir, "target.db")),
	}, Options{Stop: stop})
	require.NoError(t, err)
	assert.Equal(t, "stopped", rep.State)
	assert.Zero(t, rep.Rows)
}

func TestRunPlan(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	seedShop(t, source)

	manager := svc.profiles
	_, err := manager.Save("shop", source)
	require.NoError(t, err)
	_, err = manager.Save("archive-a", sqliteConfig(filepath.Join(dir, "a.db")))
	require.NoError(t, err)
	_, err = manager.Save("archive-b", sqliteConfig(filepath.Join(dir, "b.db")))
	require.NoError(t, err)

	plan := &config.Plan{
		Workers:  2,
		Defaults: config.TransferConfig{BatchSize: 10},
		Jobs: []config.Job{
			{Name: "a", Source: "shop", Target: "archive-a"},
			{Name: "b", Source: "shop", Target: "archive-b", TransferConfig: config.TransferConfig{Tables: []string{"city"}}},
			{Name: "broken", Source: "missing", Target: "archive-a"},
		},
	}
	require.NoError(t, plan.Validate())

	reports, err := svc.RunPlan(context.Background(), plan, Options{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "job broken")
	assert.NotContains(t, err.Error(), "job a:")

	require.Len(t, reports, 3)
	assert.Equal(t, 3, reports[0].Rows)
	assert.Equal(t, 10, reports[0].BatchSize)
	assert.Equal(t, []string{"city"}, reports[1].Order)
	assert.Nil(t, reports[2])
}

func TestInspect(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	seedShop(t, source)

	var out bytes.Buffer
	require.NoError(t, svc.Inspect(context.Background(), source, "", &out))

	var tables []model.Table
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "address", tables[0].Name)
	assert.ElementsMatch(t, []string{"city", "region"}, tables[0].DependencyNames())
}

func TestOrder(t *testing.T) {
	svc, dir := newTestService(t)
	source := sqliteConfig(filepath.Join(dir, "source.db"))
	seedShop(t, source)

	var out bytes.Buffer
	require.NoError(t, svc.Order(context.Background(), source, "", &out))
	assert.Equal(t, "  1. city\n  2. address\n\nExternal references: region\n", out.String())
}

func TestInteractiveTransfer(t *testing.T) {
	svc, dir := newTestService(t)
	sourcePath := filepath.Join(dir, "source.db")
	targetPath := filepath.Join(dir, "target.db")
	seedShop(t, sqliteConfig(sourcePath))

	input := strings.Join([]string{
		"1",
		"3", sourcePath, "y", "shop",
		"n",
		"3", targetPath, "n",
		"", "", "", "", "n", "",
		"4",
		"5",
	}, "\n") + "\n"

	var out bytes.Buffer
	application := NewApplication(strings.NewReader(input), &out, nil, svc.profiles, svc, nil)
	require.NoError(t, application.RunInteractive(context.Background()))

	assert.Contains(t, out.String(), "Transfer finished: 3 rows across 2 tables.")
	assert.Contains(t, out.String(), "1) shop  sqlite://"+sourcePath)
	assert.Contains(t, out.String(), "Exiting interactive mode.")
}

func TestInteractiveEOF(t *testing.T) {
	svc, _ := newTestService(t)

	var out bytes.Buffer
	application := NewApplication(strings.NewReader("9\n"), &out, nil, svc.profiles, svc, nil)
	require.NoError(t, application.RunInteractive(context.Background()))
	assert.Contains(t, out.String(), "Invalid selection")
	assert.Contains(t, out.String(), "Exiting interactive mode.")
}
