package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	bucket          = "oatcontrol"
	deviceConfigKey = "device_config"

	DefaultBaudRate = 9600
)

var ErrInvalidConfig = errors.New("invalid device config")

var validate = validator.New()

// DeviceConfig holds the device paths chosen by the user. The JSON names are
// the ones used by the web client and must not change.
type DeviceConfig struct {
	TelescopeDevice   string `json:"telescopeDevice"`
	TelescopeBaudrate int    `json:"telescopeBaudrate" validate:"omitempty,oneof=1200 2400 4800 9600 19200 38400 57600 115200"`
	GuiderDevice      string `json:"guiderDevice"`
	CameraDevice      string `json:"cameraDevice"`
}

var defaultDeviceConfig = DeviceConfig{
	TelescopeBaudrate: DefaultBaudRate,
}

// DefaultDeviceConfig returns the configuration used when nothing was saved.
func DefaultDeviceConfig() DeviceConfig {
	return defaultDeviceConfig
}

// Store persists the device configuration in a bolt database.
type Store struct {
	db *bolt.DB
}

// NewStore creates a new store instance and sets default values if they are not already set.
func NewStore(db *bolt.DB) (*Store, error) {
	st := Store{
		db: db,
	}

	if err := st.setDefaults(); err != nil {
		return nil, err
	}
	return &st, nil
}

// setDefaults stores the default device configuration if none is saved yet.
func (s *Store) setDefaults() error {
	if _, err := s.readDeviceConfig(); err != nil {
		log.Infof("Setting default device config")
		return s.SetDeviceConfig(DefaultDeviceConfig())
	}

	return nil
}

// SetDeviceConfig validates the configuration and saves it as a json string in the database.
func (s *Store) SetDeviceConfig(cfg DeviceConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}

		value, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return b.Put([]byte(deviceConfigKey), value)
	})
}

// DeviceConfig returns the saved configuration. Missing data or a zero baud
// rate fall back to the defaults, so the caller always gets something usable.
func (s *Store) DeviceConfig() DeviceConfig {
	cfg, err := s.readDeviceConfig()
	if err != nil {
		log.Warnf("Failed to load device config: %v", err)
		return DefaultDeviceConfig()
	}
	if cfg.TelescopeBaudrate == 0 {
		cfg.TelescopeBaudrate = DefaultBaudRate
	}
	return cfg
}

func (s *Store) readDeviceConfig() (DeviceConfig, error) {
	var cfg DeviceConfig

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}

		value := b.Get([]byte(deviceConfigKey))
		if value == nil {
			return fmt.Errorf("key %s not found", deviceConfigKey)
		}

		return json.Unmarshal(value, &cfg)
	})

	return cfg, err
}
