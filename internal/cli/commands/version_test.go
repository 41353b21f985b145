package commands

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdoc/internal/cli/config"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		info    VersionInfo
		want    []string
		notWant []string
	}{
		{
			name:    "release build",
			info:    VersionInfo{Version: "1.2.3", Commit: "abc1234", BuildDate: "2025-03-01"},
			want:    []string{"LeapDoc v1.2.3", "Document generation", "abc1234", "2025-03-01"},
			notWant: []string{"unknown"},
		},
		{
			name:    "dev build hides unknown fields",
			info:    VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"},
			want:    []string{"LeapDoc vdev"},
			notWant: []string{"Commit", "Built"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.ResetConfig()
			t.Setenv("LEAPDOC_OUTPUT", "text")

			cmd := NewVersionCommand(tt.info)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())

			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
			for _, notWant := range tt.notWant {
				assert.NotContains(t, buf.String(), notWant)
			}
		})
	}
}

func TestVersionCommandJSON(t *testing.T) {
	config.ResetConfig()
	t.Setenv("LEAPDOC_OUTPUT", "json")

	cmd := NewVersionCommand(VersionInfo{Version: "0.1.0", Commit: "abc1234"})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	require.NoError(t, cmd.Execute())

	var got VersionInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "0.1.0", got.Version)
	assert.Equal(t, "abc1234", got.Commit)
	assert.NotEmpty(t, got.GoVersion)
}
