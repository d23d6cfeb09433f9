package api

import (
	"errors"
	"net/http"
	"time"

	"oatcontrol/pkg/config"
	"oatcontrol/pkg/devices"
)

func (s *Server) handleGetDeviceConfig(r *http.Request) (any, error) {
	return map[string]config.DeviceConfig{"config": s.store.DeviceConfig()}, nil
}

func (s *Server) handleSetDeviceConfig(r *http.Request) (any, error) {
	var cfg config.DeviceConfig
	ok, err := decodeBody(r, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok || cfg == (config.DeviceConfig{}) {
		return nil, badRequest("No configuration data provided")
	}

	if err := s.store.SetDeviceConfig(cfg); err != nil {
		if errors.Is(err, config.ErrInvalidConfig) {
			return nil, badRequest(err.Error())
		}
		s.logger.Errorf("Failed to save device config: %v", err)
		return nil, errorf(http.StatusInternalServerError, "Failed to save configuration")
	}

	s.logger.Infof("Device configuration saved: %+v", cfg)
	return map[string]any{
		"message": "Device configuration saved",
		"config":  s.store.DeviceConfig(),
	}, nil
}

func (s *Server) handleDevices(r *http.Request) (any, error) {
	found := s.devices.List()
	if found == nil {
		found = []devices.Device{}
	}
	return map[string][]devices.Device{"devices": found}, nil
}

func (s *Server) handleTime(r *http.Request) (any, error) {
	return map[string]time.Time{"current_time": time.Now()}, nil
}
