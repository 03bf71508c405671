package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeLogin        MessageType = "login"
	TypeMessage      MessageType = "message"
	TypeChatHistory  MessageType = "chat_history"
	TypeTyping       MessageType = "typing"
	TypeMessageStart MessageType = "message_start"
	TypeChar         MessageType = "char"
	TypeMessageEnd   MessageType = "message_end"
	TypeError        MessageType = "error"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrMissingUser     = errors.New("login without user_id")
)

type Envelope struct {
	Type    MessageType     `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Login must be the first client frame on a connection.
type Login struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
}

// ChatMessage carries one user utterance. The type key is optional on the
// wire.
type ChatMessage struct {
	Type    MessageType `json:"type,omitempty"`
	Message string      `json:"message"`
}

type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatHistory struct {
	Type     MessageType    `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

type Typing struct {
	Type   MessageType `json:"type"`
	Status bool        `json:"status"`
}

type MessageStart struct {
	Type MessageType `json:"type"`
}

type Char struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type MessageEnd struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

func NewChatHistory(entries []HistoryEntry) ChatHistory {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return ChatHistory{Type: TypeChatHistory, Messages: entries}
}

func NewTyping(status bool) Typing { return Typing{Type: TypeTyping, Status: status} }

func NewMessageStart() MessageStart { return MessageStart{Type: TypeMessageStart} }

func NewChar(content string) Char { return Char{Type: TypeChar, Content: content} }

func NewMessageEnd() MessageEnd { return MessageEnd{Type: TypeMessageEnd} }

func NewError(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: code, Detail: detail}
}

// ParseClientMessage decodes one client frame into Login or ChatMessage.
// A frame without a type but with a message key is a ChatMessage.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeLogin:
		var msg Login
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.UserID = strings.TrimSpace(msg.UserID)
		if msg.UserID == "" {
			return nil, ErrMissingUser
		}
		return msg, nil
	case TypeMessage, "":
		if env.Type == "" && env.Message == nil {
			return nil, ErrUnsupportedType
		}
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("invalid message: %w", err)
		}
		msg.Type = TypeMessage
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the wire type of a protocol value, or "unknown".
func TypeOf(msg any) MessageType {
	switch m := msg.(type) {
	case Login:
		return TypeLogin
	case ChatMessage:
		return TypeMessage
	case ChatHistory:
		return TypeChatHistory
	case Typing:
		return TypeTyping
	case MessageStart:
		return TypeMessageStart
	case Char:
		return TypeChar
	case MessageEnd:
		return TypeMessageEnd
	case ErrorEvent:
		return TypeError
	case Envelope:
		return m.Type
	default:
		return "unknown"
	}
}
