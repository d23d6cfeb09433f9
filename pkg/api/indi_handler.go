package api

import (
	"net/http"

	"oatcontrol/pkg/indi"
)

type indiStatus struct {
	ServerRunning  bool   `json:"server_running"`
	MountConnected *bool  `json:"mount_connected"`
	Error          string `json:"error,omitempty"`
}

type indiConnectionRequest struct {
	Connect *bool  `json:"connect"`
	Driver  string `json:"driver"`
}

type indiConnectionResult struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
	Driver  string `json:"driver"`
}

func (s *Server) indiClient() *indi.Client {
	return indi.NewClient(s.rig.INDIHost, s.rig.INDIPort, s.rig.INDIOptions...)
}

func (s *Server) handleINDIStatus(r *http.Request) (any, error) {
	client := s.indiClient()

	if !client.IsServerRunning(r.Context()) {
		notConnected := false
		return nil, &apiError{
			status: http.StatusServiceUnavailable,
			msg:    indi.ErrServerDown.Error(),
			body: indiStatus{
				ServerRunning:  false,
				MountConnected: &notConnected,
				Error:          indi.ErrServerDown.Error(),
			},
		}
	}

	status := indiStatus{ServerRunning: true}
	if connected, known := client.MountStatus(r.Context(), s.rig.INDIDriver); known {
		status.MountConnected = &connected
	}
	return status, nil
}

func (s *Server) handleINDIConnection(r *http.Request) (any, error) {
	var req indiConnectionRequest
	ok, err := decodeBody(r, &req)
	if err != nil {
		return nil, err
	}
	if !ok || req.Connect == nil {
		return nil, badRequest("connect parameter required")
	}
	if req.Driver == "" {
		req.Driver = s.rig.INDIDriver
	}

	client := s.indiClient()
	if !client.IsServerRunning(r.Context()) {
		return nil, unavailable(indi.ErrServerDown.Error())
	}

	result := indiConnectionResult{Driver: req.Driver}
	if *req.Connect {
		result.Success = client.ConnectMount(r.Context(), req.Driver)
		result.Action = "connected"
	} else {
		result.Success = client.DisconnectMount(r.Context(), req.Driver)
		result.Action = "disconnected"
	}
	return result, nil
}
