package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/kadirbelkuyu/dbxfer/internal/config"
	"github.com/kadirbelkuyu/dbxfer/internal/dialect"
)

func TestLoadPlanYAML(t *testing.T) {
	plan, err := appconfig.LoadPlan(writeSample(t, "plan.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 2, plan.Workers)
	require.Len(t, plan.Jobs, 2)
	assert.Equal(t, "shop", plan.Jobs[0].Name)
	assert.Equal(t, "job-2", plan.Jobs[1].Name)

	shop := plan.Resolve(plan.Jobs[0])
	assert.Equal(t, "public", shop.SourceSchema)
	assert.Equal(t, 500, shop.BatchSize)
	assert.Equal(t, []string{"customer", "orders"}, shop.Tables)
	assert.True(t, shop.Hints.PreserveDefaults)

	crm := plan.Resolve(plan.Jobs[1])
	assert.Equal(t, 50, crm.BatchSize)
	assert.Equal(t, "crm", crm.TargetSchema)
	assert.Equal(t, "public", crm.SourceSchema)
}

func TestLoadPlanTOML(t *testing.T) {
	plan, err := appconfig.LoadPlan(writeSample(t, "plan.toml"))
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Workers)
	require.Len(t, plan.Jobs, 1)

	job := plan.Jobs[0]
	assert.Equal(t, "archive", job.Name)
	assert.Equal(t, "legacy.toml", job.Source)

	resolved := plan.Resolve(job)
	assert.Equal(t, "main", resolved.SourceSchema)
	assert.Equal(t, 250, resolved.BatchSize)
}

func TestPlanValidation(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty.yaml":     "workers: 1\njobs: []\n",
		"duplicate.yaml": "jobs:\n  - {name: a, source: s, target: t}\n  - {name: a, source: s, target: t}\n",
		"missing.yaml":   "jobs:\n  - {name: a, source: s}\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := appconfig.LoadPlan(path)
		assert.Error(t, err, name)
	}

	plan := &appconfig.Plan{Jobs: []appconfig.Job{{Source: "a", Target: "b"}}}
	require.NoError(t, plan.Validate())
	assert.Equal(t, 1, plan.Workers)
	assert.Equal(t, appconfig.DefaultBatchSize, plan.Resolve(plan.Jobs[0]).BatchSize)
}

func TestMergeKeepsExplicitValues(t *testing.T) {
	defaults := appconfig.TransferConfig{
		SourceSchema: "public",
		BatchSize:    100,
		Tables:       []string{"a"},
		Hints:        dialect.Hints{SkipForeignKeys: true},
	}
	tc := appconfig.TransferConfig{
		SourceSchema: "sales",
		Hints:        dialect.Hints{PreserveChecks: true},
	}.Merge(defaults)

	assert.Equal(t, "sales", tc.SourceSchema)
	assert.Equal(t, 100, tc.BatchSize)
	assert.Equal(t, []string{"a"}, tc.Tables)
	assert.Equal(t, dialect.Hints{PreserveChecks: true}, tc.Hints)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DBXFER_BATCH_SIZE", "250")
	t.Setenv("DBXFER_TARGET_SCHEMA", "staging")

	tc := appconfig.TransferConfig{SourceSchema: "public", BatchSize: 1000}
	require.NoError(t, appconfig.ApplyEnv(&tc))

	assert.Equal(t, 250, tc.BatchSize)
	assert.Equal(t, "staging", tc.TargetSchema)
	assert.Equal(t, "public", tc.SourceSchema)
}

func TestApplyEnvMalformedLeavesConfig(t *testing.T) {
	t.Setenv("DBXFER_BATCH_SIZE", "lots")

	tc := appconfig.TransferConfig{BatchSize: 1000}
	assert.Error(t, appconfig.ApplyEnv(&tc))
	assert.Equal(t, 1000, tc.BatchSize)
}

func TestLoadSettings(t *testing.T) {
	settings, err := appconfig.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "configs", settings.ProfileDir)

	t.Setenv("DBXFER_PROFILE_DIR", "/etc/dbxfer")
	settings, err = appconfig.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/etc/dbxfer", settings.ProfileDir)
}
