package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/wsprd/pkg/events"
	"github.com/charlie0129/wsprd/pkg/wspr"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncodeCommand(t *testing.T) {
	out, err := run(t, "encode", "K1ABC", "FN42", "37")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	require.Equal(t, wspr.SymbolCount, len(strings.Join(lines, "")))
	require.True(t, strings.HasPrefix(lines[0], "33002000102013122210032313322020"))

	_, err = run(t, "encode", "K1ABC", "FN42", "x")
	require.Error(t, err)
}

func TestTuningWordCommand(t *testing.T) {
	out, err := run(t, "tuning-word", "14097100")
	require.NoError(t, err)
	require.Contains(t, out, "2018219448")

	out, err = run(t, "tuning-word", "--band", "20m")
	require.NoError(t, err)
	require.Contains(t, out, "14.097100 MHz")

	_, err = run(t, "tuning-word")
	require.Error(t, err)
	_, err = run(t, "tuning-word", "--band", "2m")
	require.Error(t, err)
	_, err = run(t, "tuning-word", "200000000")
	require.Error(t, err)
}

func TestDescribeEvent(t *testing.T) {
	ev := events.Event{Name: events.TxSkipped, Data: []byte(`{"reason":"no-grid"}`)}
	require.Contains(t, describeEvent(ev), "slot skipped: no-grid")

	ev = events.Event{Name: "other", Data: []byte(`{}`)}
	require.Contains(t, describeEvent(ev), "other {}")
}
