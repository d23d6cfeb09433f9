// Package devices lists the serial, USB and video devices a user can pick
// for the telescope, guider and camera.
package devices

import (
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"
)

type Type string

const (
	TypeSerial Type = "serial"
	TypeVideo  Type = "video"
	TypeUSB    Type = "usb"
)

type Device struct {
	Path        string `json:"device"`
	Description string `json:"description"`
	VID         string `json:"vid,omitempty"`
	PID         string `json:"pid,omitempty"`
	Serial      string `json:"serial_number,omitempty"`
	Product     string `json:"product"`
	Type        Type   `json:"type"`
}

// Lister finds devices. The function fields are replaced in tests.
type Lister struct {
	Ports  func() ([]*enumerator.PortDetails, error)
	Glob   func(pattern string) ([]string, error)
	Logger log.FieldLogger
}

func NewLister() *Lister {
	return &Lister{
		Ports:  enumerator.GetDetailedPortsList,
		Glob:   filepath.Glob,
		Logger: log.WithField("component", "devices"),
	}
}

// List returns serial ports first, then video devices, then USB serial
// nodes the enumerator did not report.
func (l *Lister) List() []Device {
	var devices []Device
	seen := make(map[string]bool)

	ports, err := l.Ports()
	if err != nil {
		l.Logger.Warnf("Failed to enumerate serial ports: %v", err)
	}
	for _, p := range ports {
		description := p.Product
		if description == "" {
			description = filepath.Base(p.Name)
		}
		devices = append(devices, Device{
			Path:        p.Name,
			Description: description,
			VID:         p.VID,
			PID:         p.PID,
			Serial:      p.SerialNumber,
			Product:     p.Product,
			Type:        TypeSerial,
		})
		seen[p.Name] = true
	}

	for _, path := range l.glob("/dev/video*") {
		devices = append(devices, Device{
			Path:        path,
			Description: "Video device " + filepath.Base(path),
			Product:     filepath.Base(path),
			Type:        TypeVideo,
		})
	}

	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*"} {
		for _, path := range l.glob(pattern) {
			if seen[path] {
				continue
			}
			devices = append(devices, Device{
				Path:        path,
				Description: "USB device " + filepath.Base(path),
				Product:     "USB Device " + filepath.Base(path),
				Type:        TypeUSB,
			})
		}
	}

	return devices
}

func (l *Lister) glob(pattern string) []string {
	matches, err := l.Glob(pattern)
	if err != nil {
		l.Logger.Warnf("Bad device pattern %s: %v", pattern, err)
		return nil
	}
	sort.Strings(matches)
	return matches
}
