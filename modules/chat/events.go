package chat

import (
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Emitter delivers server events to live connections.
type Emitter interface {
	Emit(connID, event string, payload any)
	EmitAll(event string, payload any)
}

// Publisher forwards domain events to the rest of the application.
type Publisher interface {
	UserOnline(event events.UserOnlineEvent)
	UserOffline(event events.UserOfflineEvent)
	RoomJoined(event events.RoomJoinedEvent)
	RoomDeleted(event events.RoomDeletedEvent)
	CallEnded(event events.CallEndedEvent)
}

// busPublisher publishes on the mono EventBus. Failures are logged, never
// returned: the coordinator must not fail a client request because a
// downstream consumer is unavailable.
type busPublisher struct {
	bus    mono.EventBus
	logger types.Logger
}

func newBusPublisher(bus mono.EventBus, logger types.Logger) Publisher {
	if bus == nil {
		return nopPublisher{}
	}
	return &busPublisher{bus: bus, logger: logger}
}

func (p *busPublisher) report(name string, err error) {
	if err != nil {
		p.logger.Warn("Failed to publish event", "event", name, "error", err)
	}
}

func (p *busPublisher) UserOnline(event events.UserOnlineEvent) {
	p.report("UserOnline", events.UserOnlineV1.Publish(p.bus, event, nil))
}

func (p *busPublisher) UserOffline(event events.UserOfflineEvent) {
	p.report("UserOffline", events.UserOfflineV1.Publish(p.bus, event, nil))
}

func (p *busPublisher) RoomJoined(event events.RoomJoinedEvent) {
	p.report("RoomJoined", events.RoomJoinedV1.Publish(p.bus, event, nil))
}

func (p *busPublisher) RoomDeleted(event events.RoomDeletedEvent) {
	p.report("RoomDeleted", events.RoomDeletedV1.Publish(p.bus, event, nil))
}

func (p *busPublisher) CallEnded(event events.CallEndedEvent) {
	p.report("CallEnded", events.CallEndedV1.Publish(p.bus, event, nil))
}

type nopPublisher struct{}

func (nopPublisher) UserOnline(events.UserOnlineEvent)   {}
func (nopPublisher) UserOffline(events.UserOfflineEvent) {}
func (nopPublisher) RoomJoined(events.RoomJoinedEvent)   {}
func (nopPublisher) RoomDeleted(events.RoomDeletedEvent) {}
func (nopPublisher) CallEnded(events.CallEndedEvent)     {}
