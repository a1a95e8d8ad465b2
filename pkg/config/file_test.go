package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/wsprd/pkg/utils/ptr"
)

func TestDefaults(t *testing.T) {
	f := NewFileFromConfig(nil, "")

	require.Equal(t, "", f.Callsign())
	require.Equal(t, 23, f.PowerDbm())
	require.Equal(t, "20m", f.Band())
	require.Equal(t, 14_097_100.0, f.DialFrequencyHz())
	require.Equal(t, TxModePolling, f.TxMode())
	require.Equal(t, "1 */2 * * * *", f.SlotSchedule())
	require.Equal(t, time.Millisecond, f.TickInterval())
	require.Equal(t, 1.0, f.LockThresholdPPM())
	require.Equal(t, 10, f.LockSamples())
	require.True(t, f.Enabled())
	require.False(t, f.SetSystemClock())
	require.False(t, f.AllowNonRootAccess())
}

func TestLoadMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	f, err := NewFile(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 23, f.PowerDbm())

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0644))
	f, err = NewFile(empty)
	require.NoError(t, err)
	require.Equal(t, "20m", f.Band())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = NewFile(bad)
	require.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsprd.json")

	f := NewFileFromConfig(&RawFileConfig{Band: ptr.To("40m")}, path)
	f.SetCallsign("k1abc")
	f.SetGrid("fn42")
	f.SetPowerDbm(37)
	f.SetEnabled(false)
	require.NoError(t, f.Save())

	loaded, err := NewFile(path)
	require.NoError(t, err)
	require.Equal(t, "K1ABC", loaded.Callsign())
	require.Equal(t, "FN42", loaded.Grid())
	require.Equal(t, 37, loaded.PowerDbm())
	require.False(t, loaded.Enabled())
	require.Equal(t, 7_040_100.0, loaded.DialFrequencyHz())

	loaded.SetDialFrequencyHz(10_140_200)
	require.Equal(t, 10_140_200.0, loaded.DialFrequencyHz())
}

func TestSetPowerDbmPanicsOutOfRange(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	require.Panics(t, func() { f.SetPowerDbm(61) })
	require.Panics(t, func() { f.SetPowerDbm(-1) })
}

func TestValidate(t *testing.T) {
	valid := func() *RawFileConfig {
		return &RawFileConfig{Callsign: ptr.To("K1ABC"), Grid: ptr.To("FN42")}
	}

	tests := []struct {
		name    string
		mutate  func(c *RawFileConfig)
		wantErr bool
	}{
		{"valid", func(*RawFileConfig) {}, false},
		{"empty grid", func(c *RawFileConfig) { c.Grid = ptr.To("") }, false},
		{"no callsign", func(c *RawFileConfig) { c.Callsign = nil }, true},
		{"bad grid", func(c *RawFileConfig) { c.Grid = ptr.To("ZZ00") }, true},
		{"bad power", func(c *RawFileConfig) { c.PowerDbm = ptr.To(70) }, true},
		{"unknown band", func(c *RawFileConfig) { c.Band = ptr.To("2m") }, true},
		{"frequency too high", func(c *RawFileConfig) { c.DialFrequencyHz = ptr.To(50_293_000.0) }, true},
		{"bad mode", func(c *RawFileConfig) { c.TxMode = ptr.To("interrupt") }, true},
		{"blocking mode", func(c *RawFileConfig) { c.TxMode = ptr.To("blocking") }, false},
		{"bad schedule", func(c *RawFileConfig) { c.SlotSchedule = ptr.To("every now and then") }, true},
		{"zero tick", func(c *RawFileConfig) { c.TickIntervalMicros = ptr.To(0) }, true},
		{"zero lock samples", func(c *RawFileConfig) { c.LockSamples = ptr.To(0) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid()
			tt.mutate(raw)
			err := NewFileFromConfig(raw, "test.json").Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestReloadKeepsValuesOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsprd.json")

	f := NewFileFromConfig(&RawFileConfig{
		Callsign: ptr.To("K1ABC"),
		Grid:     ptr.To("FN42"),
		PowerDbm: ptr.To(37),
	}, path)
	require.NoError(t, f.Save())

	require.NoError(t, os.WriteFile(path, []byte(`{"callsign":"W1AW","grid":"FN31","powerDbm":30,"txMode":"fast"}`), 0644))
	require.Error(t, f.Reload())
	require.Equal(t, "K1ABC", f.Callsign())
	require.Equal(t, "FN42", f.Grid())
	require.Equal(t, 37, f.PowerDbm())
	require.Equal(t, TxModePolling, f.TxMode())

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	require.Error(t, f.Reload())
	require.Equal(t, "K1ABC", f.Callsign())

	require.NoError(t, os.WriteFile(path, []byte(`{"callsign":"W1AW","grid":"FN31","powerDbm":30,"txMode":"blocking"}`), 0644))
	require.NoError(t, f.Reload())
	require.Equal(t, "W1AW", f.Callsign())
	require.Equal(t, 30, f.PowerDbm())
	require.Equal(t, TxModeBlocking, f.TxMode())
}

func TestRawFromConfigRoundTrip(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{Callsign: ptr.To("W1ABC"), TxMode: ptr.To("blocking")}, "")

	raw, err := NewRawFileConfigFromConfig(f)
	require.NoError(t, err)
	require.Equal(t, "W1ABC", *raw.Callsign)
	require.Equal(t, "blocking", *raw.TxMode)
	require.Equal(t, 1000, *raw.TickIntervalMicros)

	_, err = NewRawFileConfigFromConfig(nil)
	require.Error(t, err)
}
