package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("NOTIFY_BACKEND", "none")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAccountCreate(t *testing.T) {
	out, err := run(t, "account", "create", "ada", "--balance", "50")
	require.NoError(t, err)

	var account map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &account))
	assert.Equal(t, "ada", account["username"])
	assert.EqualValues(t, 50, account["balance"])
}

func TestMigrateMemory(t *testing.T) {
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")
}

func TestStats(t *testing.T) {
	out, err := run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_accounts": 0`)
	assert.NotContains(t, out, "cache")
}

func TestUnknownAccount(t *testing.T) {
	_, err := run(t, "token", "ghost")
	assert.ErrorContains(t, err, `account "ghost"`)
}

func TestAdjustRejectsBadBalance(t *testing.T) {
	_, err := run(t, "adjust", "ada", "lots", "--operator", "root")
	assert.ErrorContains(t, err, "invalid balance")
}

func TestBanRequiresReason(t *testing.T) {
	_, err := run(t, "ban", "ada", "--operator", "root")
	assert.Error(t, err)
}

func TestAccountListEmpty(t *testing.T) {
	out, err := run(t, "account", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = run(t, "account", "list", "--limit", "0")
	assert.ErrorContains(t, err, "limit must be positive")
}
