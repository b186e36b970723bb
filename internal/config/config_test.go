package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"planeId": "BOARD2",
		"logLevel": "debug",
		"match": { "maxLives": 3, "dedupWindow": "500ms" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "BOARD2", viper.GetString("planeId"))
	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 3, viper.GetInt("match.maxLives"))
	assert.Equal(t, 500*time.Millisecond, viper.GetDuration("match.dedupWindow"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "BOARD1", viper.GetString("planeId"))
	assert.Equal(t, "F22", viper.GetString("planeModel"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, ":8080", viper.GetString("http.addr"))
	assert.Equal(t, "udp", viper.GetString("radio.driver"))
	assert.Equal(t, "", viper.GetString("camera.port"))
	assert.Equal(t, 115200, viper.GetInt("camera.baud"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "combat_events", viper.GetString("influx.bucket"))
	assert.Equal(t, false, viper.GetBool("otel.enabled"))
	assert.Equal(t, "aeroduel-plane", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir()))
	assert.Equal(t, 5, viper.GetInt("match.maxPlanes"))
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{"planeId": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("AERODUEL_PLANEID", "BOARD7")
	t.Setenv("AERODUEL_MATCH_MAXLIVES", "2")

	require.NoError(t, Load(writeConfig(t, `{"planeId": "BOARD2"}`)))

	assert.Equal(t, "BOARD7", GetString("planeId"))
	assert.Equal(t, 2, GetMatchConfig().MaxLives)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero lives", `{"match": {"maxLives": 0}}`, "match.maxLives"},
		{"zero planes", `{"match": {"maxPlanes": 0}}`, "match.maxPlanes"},
		{"empty plane id", `{"planeId": "  "}`, "planeId"},
		{"bad log level", `{"logLevel": "loud"}`, "unknown logLevel"},
		{"bad storage", `{"storage": {"type": "postgres"}}`, "unknown storage type"},
		{"bad radio", `{"radio": {"driver": "lora"}}`, "unknown radio driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetMatchConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	mc := GetMatchConfig()
	assert.True(t, mc.ActiveOnStart)
	assert.Equal(t, 5, mc.MaxLives)
	assert.Equal(t, 5, mc.MaxPlanes)
	assert.True(t, mc.DecrementWhenInactive)
	assert.False(t, mc.ResetLivesOnStart)
	assert.True(t, mc.RequireKnownTarget)
	assert.Equal(t, 2*time.Second, mc.DedupWindow)
}

func TestGetRadioAndCameraConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"radio": { "driver": "loopback", "listenAddr": ":9000", "broadcastAddr": "10.0.0.255:9000" },
		"camera": { "port": "/dev/ttyUSB0", "baud": 9600 }
	}`)))

	rc := GetRadioConfig()
	assert.Equal(t, "loopback", rc.Driver)
	assert.Equal(t, ":9000", rc.ListenAddr)
	assert.Equal(t, "10.0.0.255:9000", rc.BroadcastAddr)

	cc := GetCameraConfig()
	assert.Equal(t, "/dev/ttyUSB0", cc.Port)
	assert.Equal(t, 9600, cc.Baud)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": { "type": "sqlite", "sqlite": { "flushInterval": "250ms" } }
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, 1000, sc.MaxEntries)
	assert.Equal(t, 250*time.Millisecond, sc.SQLite.FlushInterval)
}

func TestGetInfluxConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "localhost", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "http", ic.Protocol)
	assert.Equal(t, "aeroduel", ic.Org)
	assert.Equal(t, "combat_events", ic.Bucket)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "plane-2",
			"batchTimeout": "30s",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "plane-2", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestBindFlags(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--plane-id", "BOARD7", "--storage-type=sqlite"}))

	dir := writeConfig(t, `{"planeId": "BOARD2", "logLevel": "warn"}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "BOARD7", GetString("planeId"))
	assert.Equal(t, "sqlite", GetStorageConfig().Type)
	// unset flags leave file values and defaults alone
	assert.Equal(t, "warn", GetString("logLevel"))
	assert.Equal(t, ":8080", GetString("http.addr"))
}
