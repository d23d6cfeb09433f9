package mount

import (
	"encoding/json"
	"testing"

	"oatcontrol/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "Get RA", input: ":GR#", expected: true},
		{name: "Set target RA", input: ":Sr12:00:00#", expected: true},
		{name: "Missing terminator", input: ":GR", expected: false},
		{name: "Missing prefix", input: "GR#", expected: false},
		{name: "Empty", input: "", expected: false},
		{name: "Only framing", input: ":#", expected: false},
		{name: "Two commands", input: ":Sr06:00:00#:hF#", expected: false},
		{name: "Control character", input: ":Sr06:00\r00#", expected: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ValidCommand(tc.input))
		})
	}
}

func TestPositionFromConfiguredDevice(t *testing.T) {
	h := newHarness(map[string]string{
		":GR#": "12:34:56#",
		":GD#": "+45:30:00#",
	})
	cfg := ConfigFromDevices(config.DeviceConfig{TelescopeDevice: "/dev/ttyUSB0", TelescopeBaudrate: 9600})

	var pos Position
	err := Session(cfg, func(ch *Channel) {
		pos = NewMeade(ch).Position()
	}, h.options()...)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", h.device)
	assert.Equal(t, 9600, h.baud)

	data, err := json.Marshal(pos)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ra": "12:34:56", "dec": "+45:30:00"}`, string(data))
}

func TestStatusWithoutSlewReply(t *testing.T) {
	h := newHarness(map[string]string{
		":GR#": "12:34:56#",
		":GD#": "+45:30:00#",
		":GT#": "15.0417#",
		":Gg#": "-005*30#",
		":Gt#": "+40*25#",
		":GL#": "21:10:05#",
		":GC#": "06/15/24#",
	})
	ch := h.channel(t)

	st := NewMeade(ch).Status()
	assert.False(t, st.Slewing)
	assert.Equal(t, Text{Value: "15.0417", Known: true}, st.TrackingRate)
	assert.Equal(t, "-005*30", st.Longitude.Value)
	assert.Equal(t, "+40*25", st.Latitude.Value)
	assert.Equal(t, "21:10:05", st.LocalTime.Value)
	assert.Equal(t, "06/15/24", st.Date.Value)

	assert.Equal(t, []string{":GR#", ":GD#", ":GT#", ":D#", ":Gg#", ":Gt#", ":GL#", ":GC#"}, h.port.written)
}

func TestSlewing(t *testing.T) {
	h := newHarness(map[string]string{":D#": "|||||#"})
	ch := h.channel(t)

	assert.True(t, NewMeade(ch).Slewing())
}

func TestSetTarget(t *testing.T) {
	h := newHarness(map[string]string{
		":Sr05:35:17#":  "1",
		":Sd-05:23:28#": "0",
	})
	ch := h.channel(t)

	ack := NewMeade(ch).SetTarget("05:35:17", "-05:23:28")
	assert.True(t, ack.First)
	assert.False(t, ack.Second)
	assert.Equal(t, []string{":Sr05:35:17#", ":Sd-05:23:28#"}, h.port.written)
}

func TestSetRefusesValuesThatBreakFraming(t *testing.T) {
	h := newHarness(map[string]string{":Sd+10:00:00#": "1"})
	ch := h.channel(t)

	ack := NewMeade(ch).SetTarget("06:00:00#:hF", "+10:00:00")
	assert.False(t, ack.First)
	assert.True(t, ack.Second)
	assert.Equal(t, []string{":Sd+10:00:00#"}, h.port.written)
}

func TestSetLocationAndDateTime(t *testing.T) {
	h := newHarness(map[string]string{
		":St+40:25:00#": "1",
		":Sg003:42:00#": "1",
		":SC06/15/24#":  "1",
		":SL21:10:05#":  "1",
	})
	ch := h.channel(t)
	m := NewMeade(ch)

	assert.Equal(t, Ack{First: true, Second: true}, m.SetLocation("+40:25:00", "003:42:00"))
	assert.Equal(t, Ack{First: true, Second: true}, m.SetDateTime("06/15/24", "21:10:05"))
}

func TestHomingWritesWithoutReading(t *testing.T) {
	h := newHarness(nil)
	ch := h.channel(t)
	m := NewMeade(ch)

	assert.True(t, m.Home())
	assert.True(t, m.HomeRA())
	assert.True(t, m.HomeDec())
	assert.Equal(t, []string{":hF#", ":MHRL#", ":MHDU#"}, h.port.written)
	assert.NotContains(t, h.clock.events, "read")
}

func TestUnknownTextEncodesAsNull(t *testing.T) {
	data, err := json.Marshal(Target{RA: Text{Value: "10:00:00", Known: true}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"target_ra": "10:00:00", "target_dec": null}`, string(data))
}
