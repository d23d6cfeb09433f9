package api

import (
	"net/http"

	"oatcontrol/pkg/phd2"
)

type guiderAction struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
}

func (s *Server) guider() *phd2.Client {
	return phd2.NewClient(s.rig.PHD2URL, s.rig.PHD2Options...)
}

func (s *Server) handleGuiderStatus(r *http.Request) (any, error) {
	return s.guider().Status(r.Context()), nil
}

func (s *Server) handleStartGuiding(r *http.Request) (any, error) {
	return guiderAction{Success: s.guider().StartGuiding(r.Context()), Action: "start"}, nil
}

func (s *Server) handleStopGuiding(r *http.Request) (any, error) {
	return guiderAction{Success: s.guider().StopGuiding(r.Context()), Action: "stop"}, nil
}
