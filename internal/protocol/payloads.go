package protocol

import (
	"errors"
	"time"
)

// Inbound payloads. Each carries an explicit schema and rejects missing
// required fields before any side effect.

type JoinUser struct {
	UserID string `json:"userId"`
}

func (p *JoinUser) Validate() error {
	if p.UserID == "" {
		return errors.New("joinUser: userId required")
	}
	return nil
}

type JoinRoom struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

func (p *JoinRoom) Validate() error {
	if p.UserID == "" || p.FriendID == "" {
		return errors.New("joinRoom: userId and friendId required")
	}
	return nil
}

type LeaveRoom = JoinRoom

type JoinGroup struct {
	GroupID string `json:"groupId"`
}

func (p *JoinGroup) Validate() error {
	if p.GroupID == "" {
		return errors.New("joinGroup: groupId required")
	}
	return nil
}

type LeaveGroup = JoinGroup

type GroupUpdated struct {
	UserID string `json:"userId"`
}

func (p *GroupUpdated) Validate() error {
	if p.UserID == "" {
		return errors.New("groupUpdated: userId required")
	}
	return nil
}

type SendMessage struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

func (p *SendMessage) Validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return errors.New("sendMessage: sender and receiver required")
	}
	if p.Message == "" {
		return errors.New("sendMessage: message required")
	}
	return nil
}

type SendImage struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	ImageData string `json:"imageData"` // base64
	FileName  string `json:"fileName"`
}

func (p *SendImage) Validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return errors.New("sendImage: sender and receiver required")
	}
	if p.ImageData == "" || p.FileName == "" {
		return errors.New("sendImage: imageData and fileName required")
	}
	return nil
}

type SendFile struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	FileData string `json:"fileData"` // base64
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

func (p *SendFile) Validate() error {
	if p.Sender == "" || p.Receiver == "" {
		return errors.New("sendFile: sender and receiver required")
	}
	if p.FileData == "" || p.FileName == "" {
		return errors.New("sendFile: fileData and fileName required")
	}
	return nil
}

type SendGroupMessage struct {
	GroupID string `json:"groupId"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

func (p *SendGroupMessage) Validate() error {
	if p.GroupID == "" || p.Sender == "" {
		return errors.New("sendGroupMessage: groupId and sender required")
	}
	if p.Message == "" {
		return errors.New("sendGroupMessage: message required")
	}
	return nil
}

type SendGroupImage struct {
	GroupID   string `json:"groupId"`
	Sender    string `json:"sender"`
	ImageData string `json:"imageData"`
	FileName  string `json:"fileName"`
}

func (p *SendGroupImage) Validate() error {
	if p.GroupID == "" || p.Sender == "" {
		return errors.New("sendGroupImage: groupId and sender required")
	}
	if p.ImageData == "" || p.FileName == "" {
		return errors.New("sendGroupImage: imageData and fileName required")
	}
	return nil
}

type SendGroupFile struct {
	GroupID  string `json:"groupId"`
	Sender   string `json:"sender"`
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

func (p *SendGroupFile) Validate() error {
	if p.GroupID == "" || p.Sender == "" {
		return errors.New("sendGroupFile: groupId and sender required")
	}
	if p.FileData == "" || p.FileName == "" {
		return errors.New("sendGroupFile: fileData and fileName required")
	}
	return nil
}

type RecallMessage struct {
	MessageID string `json:"messageId"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
}

func (p *RecallMessage) Validate() error {
	if p.MessageID == "" || p.Sender == "" || p.Receiver == "" {
		return errors.New("recallMessage: messageId, sender and receiver required")
	}
	return nil
}

type RecallGroupMessage struct {
	MessageID string `json:"messageId"`
	GroupID   string `json:"groupId"`
}

func (p *RecallGroupMessage) Validate() error {
	if p.MessageID == "" || p.GroupID == "" {
		return errors.New("recallGroupMessage: messageId and groupId required")
	}
	return nil
}

// Outbound payloads.

type ReceiveMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type LatestMessage struct {
	FriendID   string    `json:"friendId"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	IsRecalled bool      `json:"isRecalled"`
}

type ReceiveGroupMessage struct {
	ID         string    `json:"id,omitempty"`
	GroupID    string    `json:"groupId"`
	Sender     string    `json:"sender,omitempty"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Type       string    `json:"type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type LatestGroupMessage struct {
	GroupID    string    `json:"groupId"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	IsRecalled bool      `json:"isRecalled"`
}

type MessageRecalled struct {
	MessageID  string    `json:"messageId"`
	IsRecalled bool      `json:"isRecalled"`
	Timestamp  time.Time `json:"timestamp"`
}

type GroupMessageRecalled struct {
	MessageID  string    `json:"messageId"`
	GroupID    string    `json:"groupId"`
	IsRecalled bool      `json:"isRecalled"`
	Timestamp  time.Time `json:"timestamp"`
}

type MessagesRead struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type GroupCallStarted struct {
	GroupID       string `json:"groupId"`
	InitiatorName string `json:"initiatorName"`
	GroupName     string `json:"groupName"`
}
