// Package protocol defines the JSON messages sent to websocket observers.
// The stream is snapshot-then-delta: an init message on subscribe carrying
// the complete world, then update messages carrying only what changed.
package protocol

// Message types.
const (
	TypeInit   = "init"
	TypeUpdate = "update"
)

// NeedLevels is the observer view of an agent's four meters.
type NeedLevels struct {
	Water  float64 `json:"water"`
	Food   float64 `json:"food"`
	Sleep  float64 `json:"sleep"`
	Energy float64 `json:"energy"`
}

// AgentDelta carries the observable fields of one agent. In an update
// message only agents that changed this tick are included; in an init
// message every agent is included.
type AgentDelta struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Personality string     `json:"personality,omitempty"`
	X           float64    `json:"x"`
	Z           float64    `json:"z"`
	State       string     `json:"state"`
	Progress    float64    `json:"progress"`
	Needs       NeedLevels `json:"needs"`
}

// SpeechEvent is one utterance spoken this tick.
type SpeechEvent struct {
	AgentID uint64 `json:"agent_id"`
	Text    string `json:"text"`
}

// EnvState is the observer view of current weather.
type EnvState struct {
	TempC     float64 `json:"temp_c"`
	AQI       int     `json:"aqi"`
	Condition string  `json:"condition"`
}

// StructureInfo describes one fixed structure. Sent in init only; occupancy
// changes ride along in updates.
type StructureInfo struct {
	ID       int     `json:"id"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Radius   float64 `json:"radius"`
	Capacity int     `json:"capacity"`
}

// UpdatePayload is the per-tick delta. It is also the second half of every
// init message: init is defined as "full update plus static world", so any
// client able to apply updates can apply an init by treating every agent as
// new.
type UpdatePayload struct {
	Tick    uint64        `json:"tick"`
	Env     *EnvState     `json:"env,omitempty"`
	Agents  []AgentDelta  `json:"agents,omitempty"`
	Removed []uint64      `json:"removed,omitempty"`
	Speech  []SpeechEvent `json:"speech,omitempty"`
}

// Update is the regular per-tick message.
type Update struct {
	Type string `json:"type"`
	UpdatePayload
}

// Init is the subscribe-time message: the static world plus a full
// UpdatePayload describing every live agent.
type Init struct {
	Type         string          `json:"type"`
	ServerName   string          `json:"server_name"`
	TickRateMs   int64           `json:"tick_rate_ms"`
	BoundsRadius float64         `json:"bounds_radius"`
	Structures   []StructureInfo `json:"structures"`
	UpdatePayload
}

func NewUpdate(p UpdatePayload) Update {
	return Update{Type: TypeUpdate, UpdatePayload: p}
}

func NewInit(serverName string, tickRateMs int64, boundsRadius float64, structures []StructureInfo, p UpdatePayload) Init {
	return Init{
		Type:          TypeInit,
		ServerName:    serverName,
		TickRateMs:    tickRateMs,
		BoundsRadius:  boundsRadius,
		Structures:    structures,
		UpdatePayload: p,
	}
}
