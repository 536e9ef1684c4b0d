package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/onelane/internal/bridge"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesOnlyPresentFields(t *testing.T) {
	path := writeFile(t, "onelane.yaml", `
server:
  port: 9000
  idle_timeout: 30s
vehicle:
  id: car-7
  direction: RIGHT
  max_crossing: 2s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, def.Server.Host, cfg.Server.Host)
	assert.Equal(t, Duration(30*time.Second), cfg.Server.IdleTimeout)
	assert.Equal(t, def.Server.WriteTimeout, cfg.Server.WriteTimeout)
	assert.Equal(t, "car-7", cfg.Vehicle.ID)
	assert.Equal(t, "RIGHT", cfg.Vehicle.Direction)
	assert.Equal(t, Duration(2*time.Second), cfg.Vehicle.MaxCrossing)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_CUEFile(t *testing.T) {
	path := writeFile(t, "onelane.cue", `
server: {
	host: "0.0.0.0"
	port: 8080
}
log: format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "onelane.json", `{"vehicle": {"retry_delay": "250ms", "max_retries": 0}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Vehicle.RetryDelay)
	assert.Equal(t, 0, cfg.Vehicle.MaxRetries)
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unknown field", "a.yaml", "server:\n  prot: 80\n", "prot"},
		{"unknown section", "b.yaml", "metrics:\n  enabled: true\n", "metrics"},
		{"port out of range", "c.yaml", "server:\n  port: 70000\n", "server.port"},
		{"bad duration", "d.yaml", "vehicle:\n  min_delay: soon\n", "vehicle.min_delay"},
		{"bad direction", "e.json", `{"vehicle": {"direction": "up"}}`, "vehicle.direction"},
		{"bad log level", "f.cue", `log: level: "trace"`, "log.level"},
		{"min above max", "g.yaml", "vehicle:\n  min_crossing: 9s\n  max_crossing: 1s\n", "min_crossing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)

			var lerr *LoadError
			require.ErrorAs(t, err, &lerr)
			assert.NotEmpty(t, lerr.Problems)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "onelane.toml", "port = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVehicleConfig_NormalizesAndParses(t *testing.T) {
	cfg := Default()
	cfg.Vehicle.ID = "  car-1 "
	cfg.Vehicle.Direction = "Right"

	vc, err := cfg.VehicleConfig()
	require.NoError(t, err)
	assert.Equal(t, bridge.ActorID("car-1"), vc.ID)
	assert.Equal(t, bridge.Right, vc.Direction)
	assert.Equal(t, time.Duration(cfg.Vehicle.ResponseTimeout), vc.ResponseTimeout)
	require.NoError(t, vc.Validate())
}

func TestServerConfig_RoundTripsDefaults(t *testing.T) {
	sc := Default().ServerConfig()
	assert.Equal(t, "127.0.0.1:7777", sc.Addr())
	assert.Equal(t, 5*time.Second, sc.WriteTimeout)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, Duration(90*time.Second), d)

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	assert.Error(t, d.UnmarshalJSON([]byte(`15`)))
}
