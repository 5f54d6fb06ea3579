package system

import (
	"time"

	"github.com/rgriola/bridge-sim/internal/core/event"
	coresys "github.com/rgriola/bridge-sim/internal/core/system"
	"github.com/rgriola/bridge-sim/internal/gen"
	"github.com/rgriola/bridge-sim/internal/net"
	"github.com/rgriola/bridge-sim/internal/persist"
	"go.uber.org/zap"
)

// InputSystem is the single place async results enter the game loop: new
// and dead observer sessions, finished generation requests, confirmed
// votes, and polled posts. Phase 0 (Input). It also rotates the event bus so last tick's
// events dispatch before any system runs.
type InputSystem struct {
	netServer  *net.Server
	store      *net.SessionStore
	bus        *event.Bus
	dispatcher *gen.Dispatcher
	writer     *persist.Writer
	pollCh     <-chan []persist.PostRow
	inbox      *SpeechInbox
	log        *zap.Logger

	// seenPosts holds ids this instance's own workers inserted, so the
	// poller doesn't make an agent repeat its own post.
	seenPosts map[int64]struct{}
}

func NewInputSystem(netServer *net.Server, store *net.SessionStore, bus *event.Bus, dispatcher *gen.Dispatcher, writer *persist.Writer, pollCh <-chan []persist.PostRow, inbox *SpeechInbox, log *zap.Logger) *InputSystem {
	return &InputSystem{
		netServer:  netServer,
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		writer:     writer,
		pollCh:     pollCh,
		inbox:      inbox,
		log:        log,
		seenPosts:  make(map[int64]struct{}),
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()

	s.drainSessions()
	s.drainGenResults()
	s.drainVoteResults()
	s.drainPolledPosts()
}

func (s *InputSystem) drainSessions() {
	if s.netServer == nil {
		return
	}
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	// Sessions can close without the writer noticing (reader side).
	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			s.store.Remove(id)
		}
	}
}

func (s *InputSystem) drainGenResults() {
	if s.dispatcher == nil {
		return
	}
	for {
		select {
		case res := <-s.dispatcher.Results():
			if res.PostID != 0 {
				s.seenPosts[res.PostID] = struct{}{}
			}
			s.inbox.GenResults = append(s.inbox.GenResults, res)
		default:
			return
		}
	}
}

func (s *InputSystem) drainVoteResults() {
	if s.writer == nil {
		return
	}
	for {
		select {
		case v := <-s.writer.VoteResults():
			s.inbox.Votes = append(s.inbox.Votes, v)
		default:
			return
		}
	}
}

func (s *InputSystem) drainPolledPosts() {
	if s.pollCh == nil {
		return
	}
	for {
		select {
		case batch := <-s.pollCh:
			for _, p := range batch {
				if _, mine := s.seenPosts[p.ID]; mine {
					delete(s.seenPosts, p.ID)
					continue
				}
				s.inbox.Polled = append(s.inbox.Polled, p)
			}
		default:
			return
		}
	}
}

// SessionCount returns the current number of observers.
func (s *InputSystem) SessionCount() int {
	return s.store.Len()
}
