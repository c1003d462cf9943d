package domain

import "time"

// Real-time event types as reported in V4Event.Type.
const (
	EventMessageSent            = "MESSAGESENT"
	EventMessageSuppressed      = "MESSAGESUPPRESSED"
	EventSharedPost             = "SHAREDPOST"
	EventInstantMessageCreated  = "INSTANTMESSAGECREATED"
	EventRoomCreated            = "ROOMCREATED"
	EventUserJoinedRoom         = "USERJOINEDROOM"
	EventUserLeftRoom           = "USERLEFTROOM"
	EventConnectionRequested    = "CONNECTIONREQUESTED"
	EventConnectionAccepted     = "CONNECTIONACCEPTED"
	EventSymphonyElementsAction = "SYMPHONYELEMENTSACTION"
)

// V4Event is a single real-time event delivered by the datafeed.
type V4Event struct {
	ID        string         `json:"id"`
	MessageID string         `json:"messageId,omitempty"`
	Timestamp int64          `json:"timestamp"` // epoch millis
	Type      string         `json:"type"`
	Initiator *V4Initiator   `json:"initiator,omitempty"`
	Payload   V4EventPayload `json:"payload"`
}

// Time returns the event timestamp.
func (e V4Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// InitiatorUsername returns the username of the user that caused the event,
// or "" when the event carries no initiator.
func (e V4Event) InitiatorUsername() string {
	if e.Initiator == nil || e.Initiator.User == nil {
		return ""
	}
	return e.Initiator.User.Username
}

type V4Initiator struct {
	User *V4User `json:"user,omitempty"`
}

type V4User struct {
	UserID      int64  `json:"userId"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
}

type V4Stream struct {
	StreamID   string `json:"streamId"`
	StreamType string `json:"streamType,omitempty"` // IM, MIM, ROOM, POST
	RoomName   string `json:"roomName,omitempty"`
	External   bool   `json:"external,omitempty"`
}

type V4AttachmentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type V4Message struct {
	MessageID          string             `json:"messageId"`
	Timestamp          int64              `json:"timestamp"`
	Message            string             `json:"message"`
	SharedMessage      *V4Message         `json:"sharedMessage,omitempty"`
	Data               string             `json:"data,omitempty"`
	Attachments        []V4AttachmentInfo `json:"attachments,omitempty"`
	User               *V4User            `json:"user,omitempty"`
	Stream             *V4Stream          `json:"stream,omitempty"`
	ExternalRecipients bool               `json:"externalRecipients,omitempty"`
	OriginalFormat     string             `json:"originalFormat,omitempty"`
}

// V4EventPayload holds exactly one populated member, matching V4Event.Type.
type V4EventPayload struct {
	MessageSent            *V4MessageSent            `json:"messageSent,omitempty"`
	MessageSuppressed      *V4MessageSuppressed      `json:"messageSuppressed,omitempty"`
	SharedPost             *V4SharedPost             `json:"sharedPost,omitempty"`
	InstantMessageCreated  *V4InstantMessageCreated  `json:"instantMessageCreated,omitempty"`
	RoomCreated            *V4RoomCreated            `json:"roomCreated,omitempty"`
	UserJoinedRoom         *V4UserJoinedRoom         `json:"userJoinedRoom,omitempty"`
	UserLeftRoom           *V4UserLeftRoom           `json:"userLeftRoom,omitempty"`
	ConnectionRequested    *V4ConnectionRequested    `json:"connectionRequested,omitempty"`
	ConnectionAccepted     *V4ConnectionAccepted     `json:"connectionAccepted,omitempty"`
	SymphonyElementsAction *V4SymphonyElementsAction `json:"symphonyElementsAction,omitempty"`
}

type V4MessageSent struct {
	Message *V4Message `json:"message"`
}

type V4MessageSuppressed struct {
	MessageID string    `json:"messageId"`
	Stream    *V4Stream `json:"stream,omitempty"`
}

type V4SharedPost struct {
	Message       *V4Message `json:"message"`
	SharedMessage *V4Message `json:"sharedMessage,omitempty"`
}

type V4InstantMessageCreated struct {
	Stream *V4Stream `json:"stream"`
}

type V4RoomCreated struct {
	Stream         *V4Stream      `json:"stream"`
	RoomProperties map[string]any `json:"roomProperties,omitempty"`
}

type V4UserJoinedRoom struct {
	Stream       *V4Stream `json:"stream"`
	AffectedUser *V4User   `json:"affectedUser"`
}

type V4UserLeftRoom struct {
	Stream       *V4Stream `json:"stream"`
	AffectedUser *V4User   `json:"affectedUser"`
}

type V4ConnectionRequested struct {
	ToUser *V4User `json:"toUser"`
}

type V4ConnectionAccepted struct {
	FromUser *V4User `json:"fromUser"`
}

type V4SymphonyElementsAction struct {
	Stream        *V4Stream      `json:"stream"`
	FormMessageID string         `json:"formMessageId"`
	FormID        string         `json:"formId"`
	FormValues    map[string]any `json:"formValues,omitempty"`
}
