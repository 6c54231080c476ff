package main

import (
	"bytes"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/clinic-booking/migrations"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type fakeMigrator struct {
	upErr   error
	ups     int
	steps   []int
	forced  []int
	version uint
	noVer   bool
}

func (f *fakeMigrator) Up() error { f.ups++; return f.upErr }
func (f *fakeMigrator) Steps(n int) error { f.steps = append(f.steps, n); return nil }
func (f *fakeMigrator) Force(v int) error { f.forced = append(f.forced, v); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) {
	if f.noVer {
		return 0, false, migrate.ErrNilVersion
	}
	return f.version, false, nil
}

func TestMigrationNamesListsBookingSchema(t *testing.T) {
	names, err := migrationNames(appmigrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_appointments", "000002_create_pending_bookings"}, names)
}

func TestRunUpLogsSchemaAndToleratesNoChange(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 2}
	schema := fstest.MapFS{
		"000001_create_appointments.up.sql":   {Data: []byte("")},
		"000001_create_appointments.down.sql": {Data: []byte("")},
	}

	require.NoError(t, run(nil, m, schema, logging.NewWithWriter("info", &buf)))
	assert.Equal(t, 1, m.ups)
	assert.Contains(t, buf.String(), "000001_create_appointments")
	assert.Contains(t, buf.String(), "booking schema version")
}

func TestRunCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		steps   []int
		forced  []int
		wantErr bool
	}{
		{"down default", []string{"down"}, []int{-1}, nil, false},
		{"down n", []string{"down", "2"}, []int{-2}, nil, false},
		{"down bad", []string{"down", "zero"}, nil, nil, true},
		{"force", []string{"force", "1"}, nil, []int{1}, false},
		{"force missing", []string{"force"}, nil, nil, true},
		{"version", []string{"version"}, nil, nil, false},
		{"unknown", []string{"sideways"}, nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{version: 1}
			err := run(tt.args, m, fstest.MapFS{}, logging.Discard())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.steps, m.steps)
			assert.Equal(t, tt.forced, m.forced)
			assert.Zero(t, m.ups)
		})
	}
}

func TestRunUpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("syntax error")}
	err := run([]string{"up"}, m, fstest.MapFS{}, logging.Discard())
	require.ErrorContains(t, err, "syntax error")
}

func TestRunEmptySchemaVersion(t *testing.T) {
	m := &fakeMigrator{noVer: true}
	require.NoError(t, run([]string{"version"}, m, fstest.MapFS{}, logging.Discard()))
}
