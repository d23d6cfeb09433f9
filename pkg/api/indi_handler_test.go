package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestINDIStatus(t *testing.T) {
	tests := []struct {
		name     string
		up       bool
		output   string
		err      error
		status   int
		expected string
	}{
		{
			name:     "Connected",
			up:       true,
			output:   "indi_lx200_OnStep.CONNECTION.CONNECT=On\n",
			status:   http.StatusOK,
			expected: `{"server_running": true, "mount_connected": true}`,
		},
		{
			name:     "Disconnected",
			up:       true,
			output:   "indi_lx200_OnStep.CONNECTION.CONNECT=Off\n",
			status:   http.StatusOK,
			expected: `{"server_running": true, "mount_connected": false}`,
		},
		{
			name:     "Property unreadable",
			up:       true,
			err:      errors.New("exit status 1"),
			status:   http.StatusOK,
			expected: `{"server_running": true, "mount_connected": null}`,
		},
		{
			name:     "Server down",
			up:       false,
			status:   http.StatusServiceUnavailable,
			expected: `{"server_running": false, "mount_connected": false, "error": "INDI server not running"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRig(t, nil)
			tr.indiUp = tc.up
			tr.runner.output = tc.output
			tr.runner.err = tc.err
			h := tr.handler(t)

			rec := do(t, h, http.MethodGet, "/mount/indi/status", "")
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.expected, rec.Body.String())

			if !tc.up {
				assert.Empty(t, tr.runner.Calls())
			}
		})
	}
}

func TestINDIConnection(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		property string
	}{
		{
			name:     "Connect default driver",
			body:     `{"connect": true}`,
			expected: `{"success": true, "action": "connected", "driver": "indi_lx200_OnStep"}`,
			property: "indi_lx200_OnStep.CONNECTION.CONNECT=On",
		},
		{
			name:     "Disconnect named driver",
			body:     `{"connect": false, "driver": "indi_lx200generic"}`,
			expected: `{"success": true, "action": "disconnected", "driver": "indi_lx200generic"}`,
			property: "indi_lx200generic.CONNECTION.CONNECT=Off",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRig(t, nil)
			h := tr.handler(t)

			rec := do(t, h, http.MethodPost, "/mount/indi/connection", tc.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tc.expected, rec.Body.String())

			require.Len(t, tr.runner.Calls(), 1)
			assert.Equal(t, []string{"indi_setprop", tc.property}, tr.runner.Calls()[0])
		})
	}
}

func TestINDIConnectionCommandFails(t *testing.T) {
	tr := newTestRig(t, nil)
	tr.runner.err = errors.New("exit status 2")
	h := tr.handler(t)

	rec := do(t, h, http.MethodPost, "/mount/indi/connection", `{"connect": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": false, "action": "connected", "driver": "indi_lx200_OnStep"}`, rec.Body.String())
}

func TestINDIConnectionRejected(t *testing.T) {
	t.Run("Missing connect", func(t *testing.T) {
		tr := newTestRig(t, nil)
		h := tr.handler(t)

		rec := do(t, h, http.MethodPost, "/mount/indi/connection", `{"driver": "indi_lx200_OnStep"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error": "connect parameter required"}`, rec.Body.String())
	})

	t.Run("Server down", func(t *testing.T) {
		tr := newTestRig(t, nil)
		tr.indiUp = false
		h := tr.handler(t)

		rec := do(t, h, http.MethodPost, "/mount/indi/connection", `{"connect": true}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"error": "INDI server not running"}`, rec.Body.String())
		assert.Empty(t, tr.runner.Calls())
	})
}
