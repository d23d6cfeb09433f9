package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreDefaults(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	cfg := st.DeviceConfig()
	assert.Equal(t, DefaultDeviceConfig(), cfg)
	assert.Equal(t, "", cfg.TelescopeDevice)
	assert.Equal(t, 9600, cfg.TelescopeBaudrate)
	assert.Equal(t, "", cfg.GuiderDevice)
	assert.Equal(t, "", cfg.CameraDevice)
}

func TestStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	st, err := NewStore(db)
	require.NoError(t, err)

	want := DeviceConfig{
		TelescopeDevice:   "/dev/ttyUSB0",
		TelescopeBaudrate: 19200,
		GuiderDevice:      "/dev/video0",
	}
	require.NoError(t, st.SetDeviceConfig(want))

	// A second store on the same database must not overwrite saved values.
	st2, err := NewStore(db)
	require.NoError(t, err)
	assert.Equal(t, want, st2.DeviceConfig())
}

func TestStoreZeroBaudFallsBack(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	require.NoError(t, st.SetDeviceConfig(DeviceConfig{TelescopeDevice: "/dev/ttyACM0"}))
	cfg := st.DeviceConfig()
	assert.Equal(t, "/dev/ttyACM0", cfg.TelescopeDevice)
	assert.Equal(t, DefaultBaudRate, cfg.TelescopeBaudrate)
}

func TestStoreRejectsInvalidBaud(t *testing.T) {
	st, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	err = st.SetDeviceConfig(DeviceConfig{TelescopeBaudrate: 12345})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, DefaultBaudRate, st.DeviceConfig().TelescopeBaudrate)
}

func TestLoadServerConfig(t *testing.T) {
	cfg, err := LoadServerConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerConfig(), cfg)

	path := filepath.Join(t.TempDir(), "oatcontrol.yaml")
	data := []byte(`
port: 8080
indi:
  host: indi.local
phd2:
  port: 4401
mqtt:
  broker: tcp://broker:1883
  interval: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cfg, err = LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "indi.local", cfg.INDI.Host)
	assert.Equal(t, 7624, cfg.INDI.Port)
	assert.Equal(t, "indi_lx200_OnStep", cfg.INDI.Driver)
	assert.Equal(t, 4401, cfg.PHD2.Port)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30*time.Second, cfg.MQTT.Interval)
}

func TestLoadServerConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 70000\n"), 0600))

	_, err := LoadServerConfig(path)
	assert.Error(t, err)

	_, err = LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ServerConfig)
		valid  bool
	}{
		{name: "Defaults", modify: func(c *ServerConfig) {}, valid: true},
		{name: "Zero port", modify: func(c *ServerConfig) { c.Port = 0 }, valid: false},
		{name: "INDI port out of range", modify: func(c *ServerConfig) { c.INDI.Port = 70000 }, valid: false},
		{name: "Negative PHD2 port", modify: func(c *ServerConfig) { c.PHD2.Port = -1 }, valid: false},
		{name: "Discovery port out of range", modify: func(c *ServerConfig) { c.Discovery.Port = 65536 }, valid: false},
		{name: "No database", modify: func(c *ServerConfig) { c.DBPath = "" }, valid: false},
		{
			name: "Broker without interval",
			modify: func(c *ServerConfig) {
				c.MQTT.Broker = "tcp://broker:1883"
				c.MQTT.Interval = 0
			},
			valid: false,
		},
		{
			name: "Broker with negative interval",
			modify: func(c *ServerConfig) {
				c.MQTT.Broker = "tcp://broker:1883"
				c.MQTT.Interval = -time.Second
			},
			valid: false,
		},
		{
			name:   "No broker and no interval",
			modify: func(c *ServerConfig) { c.MQTT.Interval = 0 },
			valid:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, "invalid server config")
			}
		})
	}
}
