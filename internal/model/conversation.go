package model

import "time"

type Direction string

const (
	DirectionSent         Direction = "sent"
	DirectionReceived     Direction = "received"
	DirectionReceiveError Direction = "receive-error"
)

// UndecryptableMarker replaces the text of an entry whose envelope failed
// authentication.
const UndecryptableMarker = "[undecryptable message]"

type ConversationEntry struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Direction Direction `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ConversationEntry) Failed() bool {
	return e.Direction == DirectionReceiveError
}
