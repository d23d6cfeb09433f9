package mount

import (
	"encoding/json"
	"strings"
)

// Meade commands used by the server. The full command set is documented at
// https://wiki.openastrotech.com/Knowledge/Firmware/MeadeCommands
const (
	cmdGetRA           = ":GR#"
	cmdGetDec          = ":GD#"
	cmdGetTargetRA     = ":Gr#"
	cmdGetTargetDec    = ":Gd#"
	cmdGetTrackingRate = ":GT#"
	cmdDistanceBars    = ":D#"
	cmdGetLongitude    = ":Gg#"
	cmdGetLatitude     = ":Gt#"
	cmdGetLocalTime    = ":GL#"
	cmdGetDate         = ":GC#"
	cmdGetFirmware     = ":GVN#"
	cmdHome            = ":hF#"
	cmdHomeRA          = ":MHRL#"
	cmdHomeDec         = ":MHDU#"

	// Set commands take a value between the prefix and the terminator.
	cmdSetTargetRA  = ":Sr"
	cmdSetTargetDec = ":Sd"
	cmdSetLatitude  = ":St"
	cmdSetLongitude = ":Sg"
	cmdSetDate      = ":SC"
	cmdSetLocalTime = ":SL"

	// ackOK is the reply of a set command that was accepted.
	ackOK = "1"
)

// ValidCommand reports whether cmd is framed as exactly one Meade command:
// printable ASCII, starting with ':' and with the terminator only at the end.
func ValidCommand(cmd string) bool {
	if len(cmd) < 3 || !strings.HasPrefix(cmd, ":") || !strings.HasSuffix(cmd, string(Terminator)) {
		return false
	}
	return ValidValue(cmd[1 : len(cmd)-1])
}

// ValidValue reports whether v can be sent as the argument of a set command
// without changing its framing.
func ValidValue(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7e || v[i] == Terminator {
			return false
		}
	}
	return true
}

func setCommand(prefix, value string) string {
	return prefix + value + string(Terminator)
}

// Text is a reply that may be unknown. It encodes as null when unknown.
type Text struct {
	Value string
	Known bool
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Known {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

type Position struct {
	RA  Text `json:"ra"`
	Dec Text `json:"dec"`
}

type Target struct {
	RA  Text `json:"target_ra"`
	Dec Text `json:"target_dec"`
}

type Status struct {
	RA           Text `json:"ra"`
	Dec          Text `json:"dec"`
	TrackingRate Text `json:"tracking_rate"`
	Slewing      bool `json:"slewing"`
	Longitude    Text `json:"longitude"`
	Latitude     Text `json:"latitude"`
	LocalTime    Text `json:"local_time"`
	Date         Text `json:"date"`
}

// Ack holds the acknowledgements of a pair of set commands.
type Ack struct {
	First  bool
	Second bool
}

// Meade issues Meade commands over a connected channel.
type Meade struct {
	ch *Channel
}

func NewMeade(ch *Channel) *Meade {
	return &Meade{ch: ch}
}

func (m *Meade) query(cmd string) Text {
	text, ok := m.ch.Exchange(cmd)
	return Text{Value: text, Known: ok}
}

// set sends a set command. Values that would break the framing are refused
// without writing anything.
func (m *Meade) set(prefix, value string) bool {
	cmd := setCommand(prefix, value)
	if !ValidCommand(cmd) {
		m.ch.logger.Warnf("Refusing malformed command %q", cmd)
		return false
	}
	reply := m.query(cmd)
	return reply.Known && reply.Value == ackOK
}

func (m *Meade) Position() Position {
	return Position{
		RA:  m.query(cmdGetRA),
		Dec: m.query(cmdGetDec),
	}
}

func (m *Meade) TrackingRate() Text {
	return m.query(cmdGetTrackingRate)
}

// Slewing reads the distance bars. The mount answers with nothing at all
// when it is not slewing, which is why an empty reply is not an error.
func (m *Meade) Slewing() bool {
	reply := m.query(cmdDistanceBars)
	return reply.Known && reply.Value != ""
}

func (m *Meade) Status() Status {
	var st Status
	st.RA = m.query(cmdGetRA)
	st.Dec = m.query(cmdGetDec)
	st.TrackingRate = m.query(cmdGetTrackingRate)
	st.Slewing = m.Slewing()
	st.Longitude = m.query(cmdGetLongitude)
	st.Latitude = m.query(cmdGetLatitude)
	st.LocalTime = m.query(cmdGetLocalTime)
	st.Date = m.query(cmdGetDate)
	return st
}

func (m *Meade) Target() Target {
	return Target{
		RA:  m.query(cmdGetTargetRA),
		Dec: m.query(cmdGetTargetDec),
	}
}

// SetTarget sets the slew target, RA as HH:MM:SS and Dec as sDD:MM:SS.
func (m *Meade) SetTarget(ra, dec string) Ack {
	return Ack{
		First:  m.set(cmdSetTargetRA, ra),
		Second: m.set(cmdSetTargetDec, dec),
	}
}

// SetLocation sets the site, latitude as sDD:MM:SS and longitude as DDD:MM:SS.
func (m *Meade) SetLocation(latitude, longitude string) Ack {
	return Ack{
		First:  m.set(cmdSetLatitude, latitude),
		Second: m.set(cmdSetLongitude, longitude),
	}
}

// SetDateTime sets the date as MM/DD/YY and the local time as HH:MM:SS.
func (m *Meade) SetDateTime(date, localTime string) Ack {
	return Ack{
		First:  m.set(cmdSetDate, date),
		Second: m.set(cmdSetLocalTime, localTime),
	}
}

func (m *Meade) Firmware() Text {
	return m.query(cmdGetFirmware)
}

// Home moves both axes home. Homing commands have no reply.
func (m *Meade) Home() bool {
	return m.ch.Write(cmdHome)
}

// HomeRA homes the RA axis using its Hall sensor.
func (m *Meade) HomeRA() bool {
	return m.ch.Write(cmdHomeRA)
}

// HomeDec homes the DEC axis using its Hall sensor.
func (m *Meade) HomeDec() bool {
	return m.ch.Write(cmdHomeDec)
}
