package api

import (
	"errors"
	"net/http"

	"oatcontrol/pkg/mount"
)

const errMountNotConnected = "Mount not connected"

type targetRequest struct {
	RA  *string `json:"ra"`
	Dec *string `json:"dec"`
}

type locationRequest struct {
	Latitude  *string `json:"latitude"`
	Longitude *string `json:"longitude"`
}

type dateTimeRequest struct {
	Date *string `json:"date"`
	Time *string `json:"time"`
}

// checkValues rejects set command arguments that would not go out as a
// single Meade command.
func checkValues(names string, values ...string) error {
	for _, v := range values {
		if !mount.ValidValue(v) {
			return badRequest("invalid " + names)
		}
	}
	return nil
}

// withMount runs fn on a fresh serial session to the configured telescope.
// The session is closed before the response is written.
func (s *Server) withMount(fn func(m *mount.Meade) any) (any, error) {
	cfg := mount.ConfigFromDevices(s.store.DeviceConfig())

	var value any
	err := mount.Session(cfg, func(ch *mount.Channel) {
		value = fn(mount.NewMeade(ch))
	}, s.rig.MountOptions...)
	if errors.Is(err, mount.ErrNotConnected) {
		return nil, unavailable(errMountNotConnected)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Server) handleMountStatus(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return m.Status()
	})
}

func (s *Server) handlePosition(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return m.Position()
	})
}

func (s *Server) handleTracking(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return map[string]mount.Text{"tracking_rate": m.TrackingRate()}
	})
}

func (s *Server) handleGetTarget(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return m.Target()
	})
}

func (s *Server) handleSetTarget(r *http.Request) (any, error) {
	var req targetRequest
	ok, err := decodeBody(r, &req)
	if err != nil {
		return nil, err
	}
	if !ok || req.RA == nil || req.Dec == nil {
		return nil, badRequest("RA and DEC required")
	}
	if err := checkValues("RA or DEC", *req.RA, *req.Dec); err != nil {
		return nil, err
	}

	return s.withMount(func(m *mount.Meade) any {
		ack := m.SetTarget(*req.RA, *req.Dec)
		return map[string]any{
			"ra_set":     ack.First,
			"dec_set":    ack.Second,
			"target_ra":  *req.RA,
			"target_dec": *req.Dec,
		}
	})
}

func (s *Server) handleHome(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return map[string]any{"success": m.Home(), "message": "Move both axes to home"}
	})
}

func (s *Server) handleHomeRA(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return map[string]any{"success": m.HomeRA(), "message": "Homing RA axis"}
	})
}

func (s *Server) handleHomeDec(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return map[string]any{"success": m.HomeDec(), "message": "Homing DEC axis"}
	})
}

func (s *Server) handleSetLocation(r *http.Request) (any, error) {
	var req locationRequest
	ok, err := decodeBody(r, &req)
	if err != nil {
		return nil, err
	}
	if !ok || req.Latitude == nil || req.Longitude == nil {
		return nil, badRequest("latitude and longitude required")
	}
	if err := checkValues("latitude or longitude", *req.Latitude, *req.Longitude); err != nil {
		return nil, err
	}

	return s.withMount(func(m *mount.Meade) any {
		ack := m.SetLocation(*req.Latitude, *req.Longitude)
		return map[string]any{
			"latitude_set":  ack.First,
			"longitude_set": ack.Second,
			"latitude":      *req.Latitude,
			"longitude":     *req.Longitude,
		}
	})
}

func (s *Server) handleFirmware(r *http.Request) (any, error) {
	return s.withMount(func(m *mount.Meade) any {
		return map[string]mount.Text{"firmware_version": m.Firmware()}
	})
}

func (s *Server) handleSetDateTime(r *http.Request) (any, error) {
	var req dateTimeRequest
	ok, err := decodeBody(r, &req)
	if err != nil {
		return nil, err
	}
	if !ok || req.Date == nil || req.Time == nil {
		return nil, badRequest("date and time required")
	}
	if err := checkValues("date or time", *req.Date, *req.Time); err != nil {
		return nil, err
	}

	return s.withMount(func(m *mount.Meade) any {
		ack := m.SetDateTime(*req.Date, *req.Time)
		return map[string]any{
			"date_set": ack.First,
			"time_set": ack.Second,
			"date":     *req.Date,
			"time":     *req.Time,
		}
	})
}
