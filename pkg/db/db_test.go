package db_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/vulnscope/vulnscope/pkg/db"
	"github.com/vulnscope/vulnscope/pkg/types"
)

var leftPad = types.Package{Name: "left-pad", Version: "1.3.0", Ecosystem: "npm"}

func TestOpen(t *testing.T) {
	cacheDir := t.TempDir()

	d, err := db.Open(cacheDir)
	require.NoError(t, err)

	md, err := d.Metadata()
	require.NoError(t, err)
	assert.Equal(t, db.SchemaVersion, md.Version)
	require.NoError(t, d.Close())

	_, err = os.Stat(db.Path(cacheDir))
	require.NoError(t, err)

	require.NoError(t, db.Remove(cacheDir))
	_, err = os.Stat(db.Path(cacheDir))
	assert.True(t, os.IsNotExist(err))
}

func TestDB_Lookup(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	vulns := []types.Vulnerability{
		{ID: "GHSA-xxxx-yyyy-zzzz", Summary: "prototype pollution"},
	}

	tests := []struct {
		name    string
		put     []types.Vulnerability
		elapsed time.Duration
		want    []types.Vulnerability
		wantHit bool
	}{
		{
			name:    "fresh entry",
			put:     vulns,
			elapsed: time.Hour,
			want:    vulns,
			wantHit: true,
		},
		{
			name:    "cached not-found",
			put:     nil,
			elapsed: time.Hour,
			want:    nil,
			wantHit: true,
		},
		{
			name:    "expired entry",
			put:     vulns,
			elapsed: 25 * time.Hour,
			wantHit: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeClock := clocktesting.NewFakeClock(now)
			d, err := db.Open(t.TempDir(), db.WithClock(fakeClock), db.WithTTL(24*time.Hour))
			require.NoError(t, err)
			defer d.Close()

			_, hit, err := d.GetLookup(leftPad)
			require.NoError(t, err)
			assert.False(t, hit)

			require.NoError(t, d.PutLookup(leftPad, tt.put))
			fakeClock.Step(tt.elapsed)

			got, hit, err := d.GetLookup(leftPad)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHit, hit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDB_Purge(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	d, err := db.Open(t.TempDir(), db.WithClock(fakeClock), db.WithTTL(time.Hour))
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.PutLookup(leftPad, nil))
	fakeClock.Step(2 * time.Hour)
	express := types.Package{Name: "express", Version: "4.17.1", Ecosystem: "npm"}
	require.NoError(t, d.PutLookup(express, nil))

	counts, err := d.Count()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"npm": 2}, counts)

	purged, err := d.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	counts, err = d.Count()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"npm": 1}, counts)
}
