package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/oklog/ulid/v2"
)

// CallState is a user's position in the 1:1 call state machine.
type CallState string

// Call states.
const (
	CallIdle     CallState = "idle"
	CallOutgoing CallState = "outgoing"
	CallRinging  CallState = "ringing"
	CallInCall   CallState = "in-call"
)

// Timer is the part of *time.Timer the router needs.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that runs f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type callSession struct {
	id         string
	caller     string
	callee     string
	isVideo    bool
	answered   bool
	startedAt  time.Time
	answeredAt *time.Time
	timer      Timer
}

func (s *callSession) peer(user string) string {
	if user == s.caller {
		return s.callee
	}
	return s.caller
}

// delivery is an event addressed to a username, sent after the router lock
// is released.
type delivery struct {
	to      string
	event   string
	payload any
}

// CallRouter is the authority for 1:1 call sessions. Both participants of a
// session map to the same *callSession.
type CallRouter struct {
	mu       sync.Mutex
	sessions map[string]*callSession

	registry  *Registry
	emitter   Emitter
	pub       Publisher
	logger    types.Logger
	timeout   time.Duration
	afterFunc AfterFunc
	now       func() time.Time
}

// NewCallRouter creates a router. A nil afterFunc uses time.AfterFunc.
func NewCallRouter(registry *Registry, emitter Emitter, pub Publisher, logger types.Logger, timeout time.Duration, afterFunc AfterFunc, now func() time.Time) *CallRouter {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	if now == nil {
		now = time.Now
	}
	return &CallRouter{
		sessions:  make(map[string]*callSession),
		registry:  registry,
		emitter:   emitter,
		pub:       pub,
		logger:    logger,
		timeout:   timeout,
		afterFunc: afterFunc,
		now:       now,
	}
}

// State returns the call state of user.
func (r *CallRouter) State(user string) CallState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[user]
	switch {
	case !ok:
		return CallIdle
	case s.answered:
		return CallInCall
	case s.caller == user:
		return CallOutgoing
	default:
		return CallRinging
	}
}

// Peer returns the other side of user's session.
func (r *CallRouter) Peer(user string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[user]
	if !ok {
		return "", false
	}
	return s.peer(user), true
}

// ActiveSessions returns the number of live sessions.
func (r *CallRouter) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) / 2
}

// Call rings to on behalf of from. Calls to an offline user or to oneself are
// dropped; a busy callee is reported back to the caller.
func (r *CallRouter) Call(ctx context.Context, from, to string, offer json.RawMessage, isVideo bool) {
	to = strings.TrimSpace(to)
	if to == "" || to == from {
		return
	}
	if _, ok := r.registry.Resolve(ctx, to); !ok {
		r.logger.Debug("Call to offline user dropped", "from", from, "to", to)
		return
	}

	r.mu.Lock()
	if _, busy := r.sessions[from]; busy {
		r.mu.Unlock()
		r.logger.Warn("Call from non-idle user dropped", "from", from, "to", to)
		return
	}
	if _, busy := r.sessions[to]; busy {
		r.mu.Unlock()
		r.deliver(ctx, delivery{to: from, event: EventCallRejected, payload: CallRejectedPayload{From: to, Reason: ReasonBusy}})
		now := r.now()
		r.pub.CallEnded(events.CallEndedEvent{
			CallID:    ulid.Make().String(),
			Caller:    from,
			Callee:    to,
			IsVideo:   isVideo,
			Outcome:   string(domain.CallBusy),
			StartedAt: now,
			EndedAt:   now,
		})
		return
	}

	s := &callSession{
		id:        ulid.Make().String(),
		caller:    from,
		callee:    to,
		isVideo:   isVideo,
		startedAt: r.now(),
	}
	r.sessions[from] = s
	r.sessions[to] = s
	s.timer = r.afterFunc(r.timeout, func() { r.expire(s) })
	r.mu.Unlock()

	r.logger.Info("Call ringing", "callId", s.id, "caller", from, "callee", to, "video", isVideo)
	r.deliver(ctx, delivery{to: to, event: EventIncomingCall, payload: IncomingCallPayload{From: from, Offer: offer, IsVideo: isVideo}})
}

// Answer accepts the call from `to`. Only the ringing callee may answer.
func (r *CallRouter) Answer(ctx context.Context, from, to string, answer json.RawMessage) {
	r.mu.Lock()
	s, ok := r.sessions[from]
	if !ok || s.callee != from || s.caller != to || s.answered {
		r.mu.Unlock()
		r.logger.Debug("Answer without ringing call dropped", "from", from, "to", to)
		return
	}
	now := r.now()
	s.answered = true
	s.answeredAt = &now
	s.timer.Stop()
	r.mu.Unlock()

	r.logger.Info("Call answered", "callId", s.id, "caller", to, "callee", from)
	r.deliver(ctx, delivery{to: to, event: EventCallAnswered, payload: CallAnsweredPayload{From: from, Answer: answer}})
}

// IceCandidate relays a candidate to the peer of an existing session.
func (r *CallRouter) IceCandidate(ctx context.Context, from, to string, candidate json.RawMessage) {
	r.mu.Lock()
	s, ok := r.sessions[from]
	ok = ok && s.peer(from) == to
	r.mu.Unlock()
	if !ok {
		return
	}
	r.deliver(ctx, delivery{to: to, event: EventIceCandidate, payload: IceCandidatePayload{From: from, Candidate: candidate}})
}

// Reject refuses or aborts the session between from and to.
func (r *CallRouter) Reject(ctx context.Context, from, to, reason string) {
	if reason == "" {
		reason = ReasonRejected
	}
	s, ok := r.take(from, to)
	if !ok {
		return
	}
	r.deliver(ctx, delivery{to: to, event: EventCallRejected, payload: CallRejectedPayload{From: from, Reason: reason}})
	r.finish(s, outcomeFor(s, from))
}

// End hangs up the session between from and to.
func (r *CallRouter) End(ctx context.Context, from, to string) {
	s, ok := r.take(from, to)
	if !ok {
		return
	}
	r.deliver(ctx, delivery{to: to, event: EventCallEnded, payload: CallEndedPayload{From: from}})
	r.finish(s, outcomeFor(s, from))
}

// OnDisconnect ends any session user is part of.
func (r *CallRouter) OnDisconnect(ctx context.Context, user string) {
	r.mu.Lock()
	s, ok := r.sessions[user]
	if ok {
		r.removeLocked(s)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.deliver(ctx, delivery{to: s.peer(user), event: EventCallEnded, payload: CallEndedPayload{From: user}})
	r.finish(s, domain.CallDisconnected)
}

// Shutdown disarms every pending timer.
func (r *CallRouter) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.timer.Stop()
	}
}

// expire fires when a ringing call reaches its deadline. A timer belonging
// to a session that has since ended or been answered does nothing.
func (r *CallRouter) expire(s *callSession) {
	r.mu.Lock()
	if r.sessions[s.caller] != s || s.answered {
		r.mu.Unlock()
		return
	}
	r.removeLocked(s)
	r.mu.Unlock()

	ctx := context.Background()
	r.logger.Info("Call timed out", "callId", s.id, "caller", s.caller, "callee", s.callee)
	r.deliver(ctx,
		delivery{to: s.callee, event: EventCallEnded, payload: CallEndedPayload{From: s.caller}},
		delivery{to: s.caller, event: EventCallRejected, payload: CallRejectedPayload{From: s.callee, Reason: ReasonNoAnswer}},
	)
	r.finish(s, domain.CallMissed)
}

// take removes the session shared by from and to.
func (r *CallRouter) take(from, to string) (*callSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[from]
	if !ok || s.peer(from) != to {
		return nil, false
	}
	r.removeLocked(s)
	return s, true
}

func (r *CallRouter) removeLocked(s *callSession) {
	if r.sessions[s.caller] == s {
		delete(r.sessions, s.caller)
	}
	if r.sessions[s.callee] == s {
		delete(r.sessions, s.callee)
	}
	s.timer.Stop()
}

func (r *CallRouter) finish(s *callSession, outcome domain.CallOutcome) {
	r.logger.Info("Call ended", "callId", s.id, "outcome", outcome)
	r.pub.CallEnded(events.CallEndedEvent{
		CallID:     s.id,
		Caller:     s.caller,
		Callee:     s.callee,
		IsVideo:    s.isVideo,
		Outcome:    string(outcome),
		StartedAt:  s.startedAt,
		AnsweredAt: s.answeredAt,
		EndedAt:    r.now(),
	})
}

func (r *CallRouter) deliver(ctx context.Context, out ...delivery) {
	for _, d := range out {
		conn, ok := r.registry.Resolve(ctx, d.to)
		if !ok {
			continue
		}
		r.emitter.Emit(conn, d.event, d.payload)
	}
}

// outcomeFor classifies a session ended by user.
func outcomeFor(s *callSession, user string) domain.CallOutcome {
	switch {
	case s.answered:
		return domain.CallCompleted
	case user == s.caller:
		return domain.CallCancelled
	default:
		return domain.CallRejected
	}
}
