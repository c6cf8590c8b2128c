package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls      []string
	upErr      error
	versionErr error
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return 3, false, f.versionErr
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args    []string
		want    command
		wantErr bool
	}{
		{args: nil, want: command{name: "up"}},
		{args: []string{"down"}, want: command{name: "down"}},
		{args: []string{"version"}, want: command{name: "version"}},
		{args: []string{"force", "2"}, want: command{name: "force", version: 2}},
		{args: []string{"force"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"drop"}, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestExecute(t *testing.T) {
	t.Run("up with no change", func(t *testing.T) {
		m := &fakeMigrator{upErr: migrate.ErrNoChange}
		var out bytes.Buffer
		require.NoError(t, execute(m, command{name: "up"}, &out))
		assert.Equal(t, "migrations complete\n", out.String())
	})

	t.Run("up failure", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("syntax error")}
		assert.ErrorContains(t, execute(m, command{name: "up"}, &bytes.Buffer{}), "syntax error")
	})

	t.Run("down and force", func(t *testing.T) {
		m := &fakeMigrator{}
		var out bytes.Buffer
		require.NoError(t, execute(m, command{name: "down"}, &out))
		require.NoError(t, execute(m, command{name: "force", version: 1}, &out))
		assert.Equal(t, []string{"steps", "force"}, m.calls)
		assert.Contains(t, out.String(), "forced version to 1")
	})

	t.Run("version", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, execute(&fakeMigrator{}, command{name: "version"}, &out))
		assert.Equal(t, "version 3 (dirty=false)\n", out.String())

		out.Reset()
		require.NoError(t, execute(&fakeMigrator{versionErr: migrate.ErrNilVersion}, command{name: "version"}, &out))
		assert.Equal(t, "no migrations applied\n", out.String())
	})
}
