package system

import (
	"fmt"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"github.com/rgriola/bridge-sim/internal/core/ecs"
	"github.com/rgriola/bridge-sim/internal/core/event"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/data"
	"github.com/rgriola/bridge-sim/internal/gen"
	"github.com/rgriola/bridge-sim/internal/persist"
	"github.com/rgriola/bridge-sim/internal/scripting"
	"github.com/rgriola/bridge-sim/internal/world"
	"go.uber.org/zap"
)

// SpeechInbox carries async results from I/O goroutines into the brain. The
// input system fills it, the brain consumes it, both on the game loop.
type SpeechInbox struct {
	GenResults []gen.Result
	Polled     []persist.PostRow
	Votes      []persist.VoteResult
}

// priorityClass ranks behavior families. A desire only interrupts the
// current state when its class is strictly higher, so an agent drinking at
// critical thirst is never pulled away to chat, but will drop the cup to
// rescue a collapsing neighbor.
type priorityClass int

const (
	classIdle priorityClass = iota
	classEnvironment
	classSocial
	classSurvival
	classHeroic
)

func classOf(st world.AgentState) priorityClass {
	switch st {
	case world.StateHelping:
		return classHeroic
	case world.StateSeekWater, world.StateSeekFood, world.StateSeekShelter,
		world.StateDrinking, world.StateEating, world.StateResting:
		return classSurvival
	case world.StateSocializing, world.StateSpeaking, world.StateReproducing:
		return classSocial
	case world.StateBuilding, world.StateFleeing:
		return classEnvironment
	}
	return classIdle
}

// Per-tick urge probabilities before personality weighting. Tuned for the
// default 200ms tick; scaled by dt so speed multipliers don't change urge
// frequency per sim-second.
const (
	baseSocialRate = 0.010 // per second
	baseChatRate   = 0.004
	baseBuildRate  = 0.002
	baseBreedRate  = 0.0008
	helpRadius     = 10.0
	partnerRadius  = 4.0
	breedMinNeed   = 70.0
)

// BrainSystem runs the behavior FSM for every agent. Phase 3 (Brain).
type BrainSystem struct {
	world         *world.State
	grid          *world.Grid
	env           *EnvironmentSystem
	engine        *scripting.Engine
	personalities *data.PersonalityTable
	dispatcher    *gen.Dispatcher
	writer        *persist.Writer
	bus           *event.Bus
	inbox         *SpeechInbox
	needs         config.NeedsConfig
	sim           config.SimulationConfig
	log           *zap.Logger

	handlers map[world.AgentState]func(*world.Agent, float64)
	childSeq int
}

func NewBrainSystem(ws *world.State, grid *world.Grid, env *EnvironmentSystem, engine *scripting.Engine, personalities *data.PersonalityTable, dispatcher *gen.Dispatcher, writer *persist.Writer, bus *event.Bus, inbox *SpeechInbox, needs config.NeedsConfig, sim config.SimulationConfig, log *zap.Logger) *BrainSystem {
	s := &BrainSystem{
		world:         ws,
		grid:          grid,
		env:           env,
		engine:        engine,
		personalities: personalities,
		dispatcher:    dispatcher,
		writer:        writer,
		bus:           bus,
		inbox:         inbox,
		needs:         needs,
		sim:           sim,
		log:           log,
	}
	s.registerHandlers()
	return s
}

func (s *BrainSystem) Phase() coresys.Phase { return coresys.PhaseBrain }

func (s *BrainSystem) Update(dt time.Duration) {
	sec := dt.Seconds()
	s.consumeInbox()
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		w := s.urgeWeights(a)
		s.maybeChat(a, w, sec)
		s.evaluate(a, w, sec)
		if h := s.handlers[a.State]; h != nil {
			h(a, sec)
		}
	}
}

// evaluate computes the strongest desire and interrupts the current state
// if it belongs to a strictly higher class. Interrupted operations lose
// their progress.
func (s *BrainSystem) evaluate(a *world.Agent, w scripting.UrgeWeights, sec float64) {
	cur := classOf(a.State)

	// Heroics: a neighbor below the emergency threshold, while we are
	// healthy enough to help.
	if cur < classHeroic {
		if target, ok := s.findDistressed(a); ok {
			s.transitionTo(a, world.StateHelping)
			a.HelpTarget = target
			return
		}
	}

	// Survival: our own lowest need under the critical threshold.
	if cur < classSurvival {
		if k, v := a.Needs.Lowest(); v < s.needs.CriticalThreshold {
			s.transitionTo(a, seekStateFor(k))
			return
		}
	}

	// Social urges.
	if cur < classSocial {
		if s.roll(baseBreedRate*w.Social*sec) && s.breedReady(a) {
			if _, ok := s.findPartner(a); ok {
				s.transitionTo(a, world.StateReproducing)
				return
			}
		}
		if s.roll(baseSocialRate * w.Social * sec) {
			s.transitionTo(a, world.StateSocializing)
			return
		}
	}

	// Environment: storms drive everyone to cover; otherwise the build urge.
	if cur < classEnvironment {
		if s.world.Env.Condition == "storm" && a.TargetID == 0 {
			s.transitionTo(a, world.StateFleeing)
			return
		}
		if s.roll(baseBuildRate * w.Build * sec) {
			s.transitionTo(a, world.StateBuilding)
			return
		}
	}
}

func seekStateFor(k world.NeedKind) world.AgentState {
	switch k {
	case world.NeedWater:
		return world.StateSeekWater
	case world.NeedFood:
		return world.StateSeekFood
	}
	// Sleep and energy both recover in shelter.
	return world.StateSeekShelter
}

// transitionTo performs exit actions, resets progress, and sets the new
// state. Progress never survives a transition.
func (s *BrainSystem) transitionTo(a *world.Agent, to world.AgentState) {
	if a.State == to {
		return
	}
	// Exit: give up any structure slot and any planned route.
	if a.TargetID != 0 {
		if st, ok := s.world.Structure(a.TargetID); ok {
			st.Release(a.ID)
		}
		a.TargetID = 0
	}
	a.TargetKind = ""
	a.Path = nil
	a.StuckTicks = 0
	if a.State == world.StateSpeaking {
		a.Speech = ""
		a.SpeakTicksLeft = 0
	}
	if a.State == world.StateHelping {
		a.HelpTarget = 0
	}

	a.Progress = 0
	a.State = to
}

func (s *BrainSystem) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	return s.world.Rand.Float64() < p
}

func (s *BrainSystem) urgeWeights(a *world.Agent) scripting.UrgeWeights {
	w := scripting.UrgeWeights{Social: 1, Build: 1, Heroic: 1, Chat: 1, Flee: 1}
	var p *data.PersonalityTemplate
	if s.personalities != nil {
		p = s.personalities.Get(a.Personality)
	}
	if p == nil {
		return w
	}
	if s.engine != nil {
		return s.engine.CalcUrgeWeights(scripting.BiasContext{
			SocialBias: p.SocialBias,
			BuildBias:  p.BuildBias,
			HeroicBias: p.HeroicBias,
			Chattiness: p.Chattiness,
			FleeBias:   p.FleeBias,
			TimeOfDay:  s.timeOfDay(),
		})
	}
	w.Social = p.SocialBias
	w.Build = p.BuildBias
	w.Heroic = p.HeroicBias
	w.Chat = p.Chattiness
	w.Flee = p.FleeBias
	return w
}

// timeOfDay maps the tick counter onto a repeating sim day. One day is 20
// sim-minutes at the default tick rate.
func (s *BrainSystem) timeOfDay() float64 {
	if s.sim.TickRate <= 0 {
		return 0
	}
	ticksPerDay := uint64((20 * time.Minute) / s.sim.TickRate)
	if ticksPerDay == 0 {
		return 0
	}
	return float64(s.world.Tick%ticksPerDay) / float64(ticksPerDay)
}

// findDistressed returns the lowest-id neighbor within helpRadius whose
// worst need is under the emergency threshold, provided this agent is
// healthy enough (all needs above critical) to afford the detour.
func (s *BrainSystem) findDistressed(a *world.Agent) (ecs.EntityID, bool) {
	if _, v := a.Needs.Lowest(); v <= s.needs.CriticalThreshold {
		return 0, false
	}
	var candidates []ecs.EntityID
	candidates = s.grid.QueryNeighbors(a.X, a.Z, helpRadius, candidates)
	for _, id := range candidates {
		if id == a.ID {
			continue
		}
		other, ok := s.world.Agent(id)
		if !ok {
			continue
		}
		if dist2(a.X, a.Z, other.X, other.Z) > helpRadius*helpRadius {
			continue
		}
		if _, v := other.Needs.Lowest(); v < s.needs.EmergencyThreshold {
			// Don't pile on: one helper per victim.
			if !s.alreadyHelped(id) {
				return id, true
			}
		}
	}
	return 0, false
}

func (s *BrainSystem) alreadyHelped(victim ecs.EntityID) bool {
	for _, id := range s.world.AgentIDsSorted() {
		if a, ok := s.world.Agent(id); ok && a.State == world.StateHelping && a.HelpTarget == victim {
			return true
		}
	}
	return false
}

func (s *BrainSystem) breedReady(a *world.Agent) bool {
	_, v := a.Needs.Lowest()
	return v >= breedMinNeed
}

func (s *BrainSystem) findPartner(a *world.Agent) (ecs.EntityID, bool) {
	var candidates []ecs.EntityID
	candidates = s.grid.QueryNeighbors(a.X, a.Z, partnerRadius, candidates)
	for _, id := range candidates {
		if id == a.ID {
			continue
		}
		other, ok := s.world.Agent(id)
		if !ok || dist2(a.X, a.Z, other.X, other.Z) > partnerRadius*partnerRadius {
			continue
		}
		if s.breedReady(other) && classOf(other.State) <= classSocial {
			return id, true
		}
	}
	return 0, false
}

// maybeChat occasionally dispatches a post request. The agent keeps doing
// whatever it was doing; the utterance comes back through the inbox and
// becomes a Speaking interlude then.
func (s *BrainSystem) maybeChat(a *world.Agent, w scripting.UrgeWeights, sec float64) {
	if s.dispatcher == nil {
		return
	}
	if !s.roll(baseChatRate * w.Chat * sec) {
		return
	}
	s.dispatcher.TryDispatch(gen.Request{
		AgentName:   a.Name,
		Personality: a.Personality,
		Kind:        "post",
		Prompt:      s.promptFor(a),
	}, a.ExtID)
}

func (s *BrainSystem) promptFor(a *world.Agent) string {
	return fmt.Sprintf("state=%s water=%.0f food=%.0f sleep=%.0f energy=%.0f weather=%s",
		a.State, a.Needs.Water, a.Needs.Food, a.Needs.Sleep, a.Needs.Energy,
		s.world.Env.Condition)
}

// consumeInbox turns async results into Speaking interludes, stats, and
// reactions, in arrival order.
func (s *BrainSystem) consumeInbox() {
	for _, res := range s.inbox.GenResults {
		s.applyGenResult(res)
	}
	s.inbox.GenResults = s.inbox.GenResults[:0]

	for _, post := range s.inbox.Polled {
		s.applyPolledPost(post)
	}
	s.inbox.Polled = s.inbox.Polled[:0]

	for _, v := range s.inbox.Votes {
		s.applyVoteResult(v)
	}
	s.inbox.Votes = s.inbox.Votes[:0]
}

// applyVoteResult counts a vote once the writer confirms the row landed.
func (s *BrainSystem) applyVoteResult(v persist.VoteResult) {
	if v.Err != nil {
		s.log.Warn("vote failed", zap.Int64("bot_id", v.BotID), zap.Error(v.Err))
		return
	}
	if a, ok := s.world.AgentByExt(v.BotID); ok {
		a.Stats.VotesCast++
		a.Dirty = true
	}
}

func (s *BrainSystem) applyGenResult(res gen.Result) {
	a, ok := s.world.AgentByName(res.AgentName)
	if !ok {
		return
	}
	if !res.Fallback {
		switch res.Kind {
		case "post":
			a.Stats.PostsMade++
		case "comment":
			a.Stats.CommentsMade++
		}
		a.Dirty = true
	}
	s.speak(a, res.Text)
}

func (s *BrainSystem) applyPolledPost(post persist.PostRow) {
	// The author vocalizes their externally-observed post.
	if author, ok := s.world.AgentByExt(post.BotID); ok {
		s.speak(author, post.Body)
	}

	// Reactions from everyone else: votes go through the store writer and
	// count when the result comes back, comments go through the generation
	// service. Neither touches the database on this goroutine.
	commented := false
	for _, id := range s.world.AgentIDsSorted() {
		a, ok := s.world.Agent(id)
		if !ok || a.ExtID == post.BotID {
			continue
		}
		w := s.urgeWeights(a)
		if s.writer != nil && s.roll(0.05*w.Social) {
			value := int16(1)
			if s.roll(0.25) {
				value = -1
			}
			s.writer.TryVote(persist.VoteJob{PostID: post.ID, BotID: a.ExtID, Value: value})
		}
		if !commented && s.dispatcher != nil && s.roll(0.10*w.Chat) {
			commented = s.dispatcher.TryDispatch(gen.Request{
				AgentName:   a.Name,
				Personality: a.Personality,
				Kind:        "comment",
				Prompt:      s.promptFor(a),
				ReplyTo:     post.Body,
				ReplyToID:   post.ID,
			}, a.ExtID)
		}
	}
}

// speak puts the agent into a ticked Speaking interlude that returns to the
// interrupted state when it runs out. Agents mid survival or heroic work
// don't stop to talk; the utterance still reaches observers.
func (s *BrainSystem) speak(a *world.Agent, text string) {
	if text == "" {
		return
	}
	event.Emit(s.bus, event.AgentSpoke{EntityID: a.ID, Text: text})

	if classOf(a.State) > classSocial {
		return
	}
	resume := a.State
	if resume == world.StateSpeaking {
		resume = a.ResumeState
	}
	s.transitionTo(a, world.StateSpeaking)
	a.ResumeState = resume
	a.Speech = text
	a.SpeakTicksLeft = s.ticksFor(s.needs.SpeakSeconds)
}

func (s *BrainSystem) ticksFor(seconds float64) int {
	if s.sim.TickRate <= 0 {
		return 1
	}
	t := int(seconds / s.sim.TickRate.Seconds())
	if t < 1 {
		t = 1
	}
	return t
}

func dist2(ax, az, bx, bz float64) float64 {
	dx, dz := ax-bx, az-bz
	return dx*dx + dz*dz
}
