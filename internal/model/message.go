package model

import (
	"encoding/json"
)

type FrameType string

const (
	FrameSend    FrameType = "send"
	FrameInfo    FrameType = "info"
	FrameDeliver FrameType = "deliver"
	FrameError   FrameType = "error"
)

type (
	// Envelope is the encrypted payload produced by the sender. The relay
	// forwards it without decoding.
	Envelope struct {
		Sender     string `json:"senderIdentity"`
		Recipient  string `json:"recipientIdentity"`
		Ciphertext []byte `json:"ciphertext"`
		Nonce      []byte `json:"nonce"`
	}

	// Frame is a single websocket message in either direction.
	//
	//	client -> relay: {type: "send", recipientIdentity, envelope}
	//	relay -> client: {type: "info", message}
	//	                 {type: "deliver", senderIdentity, envelope}
	//	                 {type: "error", message}
	Frame struct {
		Type      FrameType       `json:"type"`
		Sender    string          `json:"senderIdentity,omitempty"`
		Recipient string          `json:"recipientIdentity,omitempty"`
		Envelope  json.RawMessage `json:"envelope,omitempty"`
		Message   string          `json:"message,omitempty"`
	}
)

func InfoFrame(msg string) *Frame {
	return &Frame{Type: FrameInfo, Message: msg}
}

func ErrorFrame(msg string) *Frame {
	return &Frame{Type: FrameError, Message: msg}
}

func DeliverFrame(sender string, envelope json.RawMessage) *Frame {
	return &Frame{Type: FrameDeliver, Sender: sender, Envelope: envelope}
}

func SendFrame(recipient string, envelope json.RawMessage) *Frame {
	return &Frame{Type: FrameSend, Recipient: recipient, Envelope: envelope}
}
