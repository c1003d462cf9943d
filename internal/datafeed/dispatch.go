package datafeed

import (
	"context"
	"errors"
	"fmt"

	"symphonybdk/internal/domain"
)

var errMissingPayload = errors.New("event payload missing")

type handlerFunc func(ctx context.Context, l domain.RealTimeEventListener, e domain.V4Event) error

// route binds one payload member to the listener callback that consumes it.
func route[T any](
	get func(*domain.V4EventPayload) *T,
	on func(domain.RealTimeEventListener, context.Context, domain.V4Initiator, T) error,
) handlerFunc {
	return func(ctx context.Context, l domain.RealTimeEventListener, e domain.V4Event) error {
		payload := get(&e.Payload)
		if payload == nil {
			return fmt.Errorf("%s event %s: %w", e.Type, e.ID, errMissingPayload)
		}
		var initiator domain.V4Initiator
		if e.Initiator != nil {
			initiator = *e.Initiator
		}
		return on(l, ctx, initiator, *payload)
	}
}

var routes = map[string]handlerFunc{
	domain.EventMessageSent: route(
		func(p *domain.V4EventPayload) *domain.V4MessageSent { return p.MessageSent },
		domain.RealTimeEventListener.OnMessageSent),
	domain.EventMessageSuppressed: route(
		func(p *domain.V4EventPayload) *domain.V4MessageSuppressed { return p.MessageSuppressed },
		domain.RealTimeEventListener.OnMessageSuppressed),
	domain.EventSharedPost: route(
		func(p *domain.V4EventPayload) *domain.V4SharedPost { return p.SharedPost },
		domain.RealTimeEventListener.OnSharedPost),
	domain.EventInstantMessageCreated: route(
		func(p *domain.V4EventPayload) *domain.V4InstantMessageCreated { return p.InstantMessageCreated },
		domain.RealTimeEventListener.OnInstantMessageCreated),
	domain.EventRoomCreated: route(
		func(p *domain.V4EventPayload) *domain.V4RoomCreated { return p.RoomCreated },
		domain.RealTimeEventListener.OnRoomCreated),
	domain.EventUserJoinedRoom: route(
		func(p *domain.V4EventPayload) *domain.V4UserJoinedRoom { return p.UserJoinedRoom },
		domain.RealTimeEventListener.OnUserJoinedRoom),
	domain.EventUserLeftRoom: route(
		func(p *domain.V4EventPayload) *domain.V4UserLeftRoom { return p.UserLeftRoom },
		domain.RealTimeEventListener.OnUserLeftRoom),
	domain.EventConnectionRequested: route(
		func(p *domain.V4EventPayload) *domain.V4ConnectionRequested { return p.ConnectionRequested },
		domain.RealTimeEventListener.OnConnectionRequested),
	domain.EventConnectionAccepted: route(
		func(p *domain.V4EventPayload) *domain.V4ConnectionAccepted { return p.ConnectionAccepted },
		domain.RealTimeEventListener.OnConnectionAccepted),
	domain.EventSymphonyElementsAction: route(
		func(p *domain.V4EventPayload) *domain.V4SymphonyElementsAction { return p.SymphonyElementsAction },
		domain.RealTimeEventListener.OnSymphonyElementsAction),
}
