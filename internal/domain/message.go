package domain

import "time"

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

type ReadStatus string

const (
	ReadStatusUnread ReadStatus = "unread"
	ReadStatusRead   ReadStatus = "read"
)

// DirectMessage is a 1:1 message record. Body holds base64 AES-GCM ciphertext
// for text, or a storage locator for media kinds. Status and ReadStatus only
// advance toward "read"; Recalled flips false->true once and never back.
type DirectMessage struct {
	ID         string         `bson:"_id" json:"id"`
	Sender     string         `bson:"sender" json:"sender"`
	Receiver   string         `bson:"receiver" json:"receiver"`
	Body       string         `bson:"body" json:"message"`
	Kind       MessageKind    `bson:"kind" json:"type"`
	Status     DeliveryStatus `bson:"status" json:"status"`
	ReadStatus ReadStatus     `bson:"read_status" json:"readStatus"`
	Recalled   bool           `bson:"is_recalled" json:"isRecalled"`
	CreatedAt  time.Time      `bson:"created_at" json:"timestamp"`
}

// GroupMessage carries a sender-name snapshot resolved once at write time;
// it is never re-resolved, even if the user renames later. System messages
// have an empty Sender.
type GroupMessage struct {
	ID         string      `bson:"_id" json:"id"`
	GroupID    string      `bson:"group_id" json:"groupId"`
	Sender     string      `bson:"sender,omitempty" json:"sender,omitempty"`
	SenderName string      `bson:"sender_name" json:"senderName"`
	Body       string      `bson:"body" json:"message"`
	Kind       MessageKind `bson:"kind" json:"type"`
	Recalled   bool        `bson:"is_recalled" json:"isRecalled"`
	CreatedAt  time.Time   `bson:"created_at" json:"timestamp"`
}
