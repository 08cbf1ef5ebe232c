package model

// MessageType is the discriminator for real-time channel frames.
type MessageType string

const (
	MessageTypeNotice           MessageType = "notice"
	MessageTypeMediaRequest     MessageType = "media_request"
	MessageTypeDevices          MessageType = "devices"
	MessageTypeDataNotification MessageType = "data_notification"
)

// Message is the tagged union sent over the real-time channel in both
// directions. Exactly one payload field is set, selected by Type.
type Message struct {
	Type         MessageType        `json:"type"`
	Text         string             `json:"text,omitempty"`
	Request      *MediaRequest      `json:"request,omitempty"`
	Links        []InstallationLink `json:"links,omitempty"`
	Notification *DataNotification  `json:"notification,omitempty"`
}

// NoticeMessage builds an informational frame.
func NoticeMessage(text string) *Message {
	return &Message{Type: MessageTypeNotice, Text: text}
}

// MediaRequestMessage asks a specific installation to upload a media object.
func MediaRequestMessage(req *MediaRequest) *Message {
	return &Message{Type: MessageTypeMediaRequest, Request: req}
}

// DevicesMessage carries a full snapshot of the account's active links.
// Snapshots are authoritative and supersede any partial state on the client.
func DevicesMessage(links []InstallationLink) *Message {
	return &Message{Type: MessageTypeDevices, Links: links}
}

// DataNotificationMessage tells consuming devices to re-pull the listing.
func DataNotificationMessage(n *DataNotification) *Message {
	return &Message{Type: MessageTypeDataNotification, Notification: n}
}
