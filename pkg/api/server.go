package api

import (
	"net/http"
	"time"

	"oatcontrol/pkg/config"
	"oatcontrol/pkg/devices"
	"oatcontrol/pkg/indi"
	"oatcontrol/pkg/mount"
	"oatcontrol/pkg/phd2"

	log "github.com/sirupsen/logrus"
)

type ServerDescription struct {
	Name         string `json:"ServerName"`
	Manufacturer string `json:"Manufacturer"`
	Version      string `json:"Version"`
	Location     string `json:"Location"`
}

// Rig tells the server how to reach the devices. Clients are built from it
// for every request and thrown away afterwards.
type Rig struct {
	MountOptions []mount.Option

	INDIHost    string
	INDIPort    int
	INDIDriver  string
	INDIOptions []indi.Option

	PHD2URL     string
	PHD2Options []phd2.Option
}

// Server serves the REST API of the rig.
type Server struct {
	description ServerDescription
	store       *config.Store
	rig         Rig
	devices     *devices.Lister
	logger      log.FieldLogger
}

func NewServer(description ServerDescription, store *config.Store, rig Rig, lister *devices.Lister, logger log.FieldLogger) *Server {
	if rig.INDIDriver == "" {
		rig.INDIDriver = indi.DefaultDriver
	}
	if rig.PHD2URL == "" {
		rig.PHD2URL = phd2.BaseURL("", 0)
	}

	server := Server{
		description: description,
		store:       store,
		rig:         rig,
		devices:     lister,
		logger:      logger,
	}

	return &server
}

func (s *Server) AddRoutes() http.Handler {
	r := http.NewServeMux()

	// Mount over serial
	r.Handle("GET /mount/{$}", handleJSON(s.handleMountStatus))
	r.Handle("GET /mount/status", handleJSON(s.handleMountStatus))
	r.Handle("GET /mount/position", handleJSON(s.handlePosition))
	r.Handle("GET /mount/tracking", handleJSON(s.handleTracking))
	r.Handle("GET /mount/target", handleJSON(s.handleGetTarget))
	r.Handle("POST /mount/target", handleJSON(s.handleSetTarget))
	r.Handle("POST /mount/home", handleJSON(s.handleHome))
	r.Handle("POST /mount/home/ra", handleJSON(s.handleHomeRA))
	r.Handle("POST /mount/home/dec", handleJSON(s.handleHomeDec))
	r.Handle("POST /mount/location", handleJSON(s.handleSetLocation))
	r.Handle("GET /mount/firmware", handleJSON(s.handleFirmware))
	r.Handle("POST /mount/datetime", handleJSON(s.handleSetDateTime))

	// Mount through INDI
	r.Handle("GET /mount/indi/status", handleJSON(s.handleINDIStatus))
	r.Handle("POST /mount/indi/connection", handleJSON(s.handleINDIConnection))

	// Guider
	r.Handle("GET /guider/status", handleJSON(s.handleGuiderStatus))
	r.Handle("POST /guider/start", handleJSON(s.handleStartGuiding))
	r.Handle("POST /guider/stop", handleJSON(s.handleStopGuiding))

	// Configuration
	r.Handle("GET /api/description", handleJSON(s.handleDescription))
	r.Handle("GET /api/devices", handleJSON(s.handleDevices))
	r.Handle("GET /api/time", handleJSON(s.handleTime))
	r.Handle("GET /api/config/device", handleJSON(s.handleGetDeviceConfig))
	r.Handle("POST /api/config/device", handleJSON(s.handleSetDeviceConfig))

	r.HandleFunc("/", s.handleNotFound)

	return s.logRequests(r)
}

func (s *Server) handleDescription(r *http.Request) (any, error) {
	return s.description, nil
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.logger.Warnf("404 Not Found: %s", r.URL)
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found."})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("Request")
	})
}
