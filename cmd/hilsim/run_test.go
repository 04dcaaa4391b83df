package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hilsim/internal/monitoring"
	"github.com/banshee-data/hilsim/internal/protocol"
	"github.com/banshee-data/hilsim/internal/transport"
	"github.com/banshee-data/hilsim/internal/units"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestRunFlags(t *testing.T) {
	f := runCmd.Flags()
	for name, want := range map[string]string{
		"config":       "",
		"port":         "",
		"format":       "",
		"loopback":     "false",
		"listen":       "",
		"speed-units":  units.MPS,
		"duration":     "0s",
		"report-every": "1s",
	} {
		fl := f.Lookup(name)
		require.NotNil(t, fl, "flag --%s", name)
		assert.Equal(t, want, fl.DefValue, "flag --%s", name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hil.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  path: /dev/ttyS0\nprotocol:\n  checksum: crc8\n"), 0644))

	cfg, err := loadConfig(runOptions{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS0", cfg.GetPath())

	cfg, err = loadConfig(runOptions{configPath: path, port: "/dev/ttyUSB1", format: "text"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.GetPath())
	assert.Equal(t, protocol.FormatText, cfg.CodecConfig().Format)
	assert.Equal(t, protocol.ChecksumCRC8, cfg.CodecConfig().Checksum)

	_, err = loadConfig(runOptions{format: "morse"})
	assert.ErrorContains(t, err, "--format")

	_, err = loadConfig(runOptions{configPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestRunHIL_Errors(t *testing.T) {
	err := runHIL(context.Background(), runOptions{speedUnits: "furlongs"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "speed units")

	err = runHIL(context.Background(), runOptions{speedUnits: units.MPS}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no serial port")
}

func TestRunHIL_ConnectFailureReturns(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		done <- runHIL(context.Background(), runOptions{
			port:       filepath.Join(t.TempDir(), "no-such-tty"),
			speedUnits: units.MPS,
		}, &bytes.Buffer{})
	}()
	select {
	case err := <-done:
		var cerr *transport.ConnectionError
		assert.ErrorAs(t, err, &cerr)
	case <-time.After(5 * time.Second):
		t.Fatal("runHIL did not return after a failed connect")
	}
}

func TestRunHIL_Loopback(t *testing.T) {
	var out bytes.Buffer
	opts := runOptions{
		loopback:    true,
		speedUnits:  units.KMPH,
		duration:    600 * time.Millisecond,
		reportEvery: 100 * time.Millisecond,
	}
	require.NoError(t, runHIL(context.Background(), opts, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2, out.String())
	assert.Contains(t, lines[0], "alt=")
	assert.Contains(t, lines[0], "kmph")

	summary := lines[len(lines)-1]
	assert.Contains(t, summary, "packets sent")
	assert.Contains(t, summary, "apogee")
	assert.NotContains(t, summary, " 0 packets sent")
	assert.NotContains(t, summary, " 0 commands received", "the emulated flight computer answers")
}

func TestListPorts(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, listPorts(cmd, &transport.MockOpener{Ports: []string{"/dev/ttyUSB0", "/dev/ttyACM0"}}))
	assert.Equal(t, "/dev/ttyUSB0\n/dev/ttyACM0\n", out.String())

	out.Reset()
	require.NoError(t, listPorts(cmd, &transport.MockOpener{}))
	assert.Equal(t, "no serial ports found\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "hilsim dev")
}
