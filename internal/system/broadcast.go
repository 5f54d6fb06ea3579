package system

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	"github.com/rgriola/bridge-sim/internal/core/event"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/net"
	"github.com/rgriola/bridge-sim/internal/protocol"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

const posEpsilon = 0.01

// agentSnap is the per-agent observable state the diff runs over.
type agentSnap struct {
	X, Z     float64
	State    world.AgentState
	Progress float64
	Needs    world.Needs
}

// BroadcastSystem diffs the world against the previous tick and sends
// deltas to observers. Phase 5 (Output). Sessions that joined this tick get
// an init message instead and start receiving deltas next tick.
//
// prev is deliberately NOT registered as a Purgeable: removals are detected
// by ids present in prev but absent now, so purging destroyed ids from it
// would erase exactly the evidence the removal delta needs.
type BroadcastSystem struct {
	world *world.State
	store *net.SessionStore
	cfg   config.NetworkConfig
	sim   config.SimulationConfig
	name  string
	log   *zap.Logger

	prev      map[ecs.EntityID]agentSnap
	prevEnv   world.Environment
	speechBuf []protocol.SpeechEvent
	tickCount int
}

func NewBroadcastSystem(ws *world.State, store *net.SessionStore, bus *event.Bus, cfg config.NetworkConfig, sim config.SimulationConfig, serverName string, log *zap.Logger) *BroadcastSystem {
	s := &BroadcastSystem{
		world:   ws,
		store:   store,
		cfg:     cfg,
		sim:     sim,
		name:    serverName,
		log:     log,
		prev:    make(map[ecs.EntityID]agentSnap),
		prevEnv: ws.Env,
	}
	event.Subscribe(bus, func(e event.AgentSpoke) {
		s.speechBuf = append(s.speechBuf, protocol.SpeechEvent{
			AgentID: uint64(e.EntityID),
			Text:    e.Text,
		})
	})
	return s
}

func (s *BroadcastSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *BroadcastSystem) Update(_ time.Duration) {
	s.tickCount++
	every := s.cfg.BroadcastEvery
	if every < 1 {
		every = 1
	}
	if s.tickCount%every != 0 {
		// Speech still accumulates; it rides the next broadcast.
		return
	}

	payload, cur := s.buildDelta()
	var updateMsg []byte
	if payloadHasContent(payload) {
		data, err := json.Marshal(protocol.NewUpdate(payload))
		if err != nil {
			s.log.Error("marshal update failed", zap.Error(err))
		} else {
			updateMsg = data
		}
	}

	var initMsg []byte
	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			return
		}
		if !sess.Initialized {
			if initMsg == nil {
				initMsg = s.buildInit()
			}
			if initMsg != nil {
				sess.Send(initMsg)
				sess.Initialized = true
			}
			return
		}
		if updateMsg != nil {
			sess.Send(updateMsg)
		}
	})
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})

	s.prev = cur
	s.prevEnv = s.world.Env
	s.speechBuf = s.speechBuf[:0]
}

// buildDelta computes the changed-agents payload and the snapshot map the
// next diff will run against.
func (s *BroadcastSystem) buildDelta() (protocol.UpdatePayload, map[ecs.EntityID]agentSnap) {
	cur := make(map[ecs.EntityID]agentSnap, s.world.Agents.Len())
	p := protocol.UpdatePayload{Tick: s.world.Tick}

	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		snap := agentSnap{X: a.X, Z: a.Z, State: a.State, Progress: a.Progress, Needs: a.Needs}
		cur[id] = snap

		old, existed := s.prev[id]
		if existed && !snapChanged(old, snap) {
			continue
		}
		delta := protocol.AgentDelta{
			ID:       uint64(id),
			X:        a.X,
			Z:        a.Z,
			State:    string(a.State),
			Progress: a.Progress,
			Needs:    needLevels(a.Needs),
		}
		if !existed {
			// New to observers: send the static identity fields too.
			delta.Name = a.Name
			delta.Personality = a.Personality
		}
		p.Agents = append(p.Agents, delta)
	}

	for id := range s.prev {
		if _, alive := cur[id]; !alive {
			p.Removed = append(p.Removed, uint64(id))
		}
	}
	sort.Slice(p.Removed, func(i, j int) bool { return p.Removed[i] < p.Removed[j] })

	if s.world.Env != s.prevEnv {
		p.Env = &protocol.EnvState{
			TempC:     s.world.Env.TempC,
			AQI:       s.world.Env.AQI,
			Condition: s.world.Env.Condition,
		}
	}
	p.Speech = append(p.Speech, s.speechBuf...)
	return p, cur
}

// buildInit serializes the full world for a fresh observer.
func (s *BroadcastSystem) buildInit() []byte {
	p := protocol.UpdatePayload{Tick: s.world.Tick}
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		p.Agents = append(p.Agents, protocol.AgentDelta{
			ID:          uint64(id),
			Name:        a.Name,
			Personality: a.Personality,
			X:           a.X,
			Z:           a.Z,
			State:       string(a.State),
			Progress:    a.Progress,
			Needs:       needLevels(a.Needs),
		})
	}
	p.Env = &protocol.EnvState{
		TempC:     s.world.Env.TempC,
		AQI:       s.world.Env.AQI,
		Condition: s.world.Env.Condition,
	}
	p.Speech = append(p.Speech, s.speechBuf...)

	structures := make([]protocol.StructureInfo, 0, len(s.world.Structures()))
	for _, st := range s.world.Structures() {
		structures = append(structures, protocol.StructureInfo{
			ID:       st.ID,
			Kind:     string(st.Kind),
			Name:     st.Name,
			X:        st.X,
			Z:        st.Z,
			Radius:   st.Radius,
			Capacity: st.Capacity,
		})
	}

	msg := protocol.NewInit(s.name, s.sim.TickRate.Milliseconds(), s.world.Bounds.Radius, structures, p)
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("marshal init failed", zap.Error(err))
		return nil
	}
	return data
}

func snapChanged(a, b agentSnap) bool {
	if a.State != b.State {
		return true
	}
	if math.Abs(a.X-b.X) > posEpsilon || math.Abs(a.Z-b.Z) > posEpsilon {
		return true
	}
	if math.Abs(a.Progress-b.Progress) > 1e-6 {
		return true
	}
	return a.Needs != b.Needs
}

func payloadHasContent(p protocol.UpdatePayload) bool {
	return len(p.Agents) > 0 || len(p.Removed) > 0 || len(p.Speech) > 0 || p.Env != nil
}

func needLevels(n world.Needs) protocol.NeedLevels {
	return protocol.NeedLevels{Water: n.Water, Food: n.Food, Sleep: n.Sleep, Energy: n.Energy}
}
