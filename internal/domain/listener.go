package domain

import "context"

// RealTimeEventListener receives datafeed events. Each callback runs on its
// own goroutine; ctx is cancelled when the datafeed shuts down, and
// long-running handlers should return promptly when that happens.
//
// Embed BaseListener to implement only the callbacks you need.
type RealTimeEventListener interface {
	// IsAcceptingEvent reports whether the event should be dispatched to
	// this listener at all.
	IsAcceptingEvent(event V4Event, botUsername string) bool

	OnMessageSent(ctx context.Context, initiator V4Initiator, event V4MessageSent) error
	OnMessageSuppressed(ctx context.Context, initiator V4Initiator, event V4MessageSuppressed) error
	OnSharedPost(ctx context.Context, initiator V4Initiator, event V4SharedPost) error
	OnInstantMessageCreated(ctx context.Context, initiator V4Initiator, event V4InstantMessageCreated) error
	OnRoomCreated(ctx context.Context, initiator V4Initiator, event V4RoomCreated) error
	OnUserJoinedRoom(ctx context.Context, initiator V4Initiator, event V4UserJoinedRoom) error
	OnUserLeftRoom(ctx context.Context, initiator V4Initiator, event V4UserLeftRoom) error
	OnConnectionRequested(ctx context.Context, initiator V4Initiator, event V4ConnectionRequested) error
	OnConnectionAccepted(ctx context.Context, initiator V4Initiator, event V4ConnectionAccepted) error
	OnSymphonyElementsAction(ctx context.Context, initiator V4Initiator, event V4SymphonyElementsAction) error
}

// BaseListener ignores every event. Its IsAcceptingEvent drops events the
// bot itself initiated.
type BaseListener struct{}

func (BaseListener) IsAcceptingEvent(event V4Event, botUsername string) bool {
	return event.InitiatorUsername() != botUsername
}

func (BaseListener) OnMessageSent(context.Context, V4Initiator, V4MessageSent) error { return nil }
func (BaseListener) OnMessageSuppressed(context.Context, V4Initiator, V4MessageSuppressed) error {
	return nil
}
func (BaseListener) OnSharedPost(context.Context, V4Initiator, V4SharedPost) error { return nil }
func (BaseListener) OnInstantMessageCreated(context.Context, V4Initiator, V4InstantMessageCreated) error {
	return nil
}
func (BaseListener) OnRoomCreated(context.Context, V4Initiator, V4RoomCreated) error { return nil }
func (BaseListener) OnUserJoinedRoom(context.Context, V4Initiator, V4UserJoinedRoom) error {
	return nil
}
func (BaseListener) OnUserLeftRoom(context.Context, V4Initiator, V4UserLeftRoom) error { return nil }
func (BaseListener) OnConnectionRequested(context.Context, V4Initiator, V4ConnectionRequested) error {
	return nil
}
func (BaseListener) OnConnectionAccepted(context.Context, V4Initiator, V4ConnectionAccepted) error {
	return nil
}
func (BaseListener) OnSymphonyElementsAction(context.Context, V4Initiator, V4SymphonyElementsAction) error {
	return nil
}
