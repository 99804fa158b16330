package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adaricorp/tsn-setup/script"
	"github.com/adaricorp/tsn-setup/tc"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, buf string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(buf), 0644))
	return path
}

func TestWriteScript(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "setup-generated.sh")

	result, err := WriteScript(writeConfig(t, dir, fullConfig), output, Options{})
	require.NoError(t, err)

	buf, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, string(result.Script.Bytes()), string(buf))
	assert.Contains(t, string(buf), "tc qdisc add dev eth0 parent root handle 100 mqprio")

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0100, "script should be executable")
}

func TestWriteScriptFailures(t *testing.T) {
	tests := []struct {
		name   string
		config string
		code   int
	}{
		{
			"missing key",
			`{"tc_group": [{"interface": "eth0", "etf": [{"queue": 0}]}]}`,
			2,
		},
		{
			"missing schedule key",
			`{"tc_group": [{"interface": "eth0", "taprio": {
				"handle": 100, "num_tc": 2, "queues": "1@0 1@1", "mapping": {"default": 0},
				"schedule": [{"duration": 300000}, {"gate_mask": "02"}]
			}}]}`,
			2,
		},
		{
			"missing parameter",
			`{"tc_group": [{"interface": "eth0", "mqprio": {
				"handle": 100, "queues": "1@0", "mapping": {"default": 0}
			}}]}`,
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			output := filepath.Join(dir, "setup-generated.sh")

			result, err := WriteScript(writeConfig(t, dir, tt.config), output, Options{})
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.code, ExitCode(err))

			buf, err := os.ReadFile(output)
			require.NoError(t, err)
			assert.Equal(t, script.Header, string(buf))
		})
	}
}

func TestWriteScriptMissingParameter(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, `{"tc_group": [{"interface": "eth0", "mqprio": {
		"handle": 100, "queues": "1@0", "mapping": {"default": 0}
	}}]}`)

	_, err := WriteScript(cfgPath, filepath.Join(dir, "out.sh"), Options{})
	assert.True(t, errors.Is(err, tc.ErrMissingParameter), "got %v", err)
}

func TestWriteScriptMissingConfig(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "setup-generated.sh")

	_, err := WriteScript(filepath.Join(dir, "missing.json"), output, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))

	_, err = os.Stat(output)
	assert.True(t, os.IsNotExist(err))
}
