// Package stream implements the duplex transport session: subscribe/
// unsubscribe control frames, wire decoding into statemachine.Event,
// heartbeats, and reconnect-with-backoff.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"lobstream/internal/statemachine"
)

// controlMessage is the outbound subscribe/unsubscribe control frame.
type controlMessage struct {
	Type       string   `json:"type"`
	Channel    string   `json:"channel"`
	ProductIDs []string `json:"product_ids"`
}

func subscribeMessage(channel string, symbols []string) ([]byte, error) {
	return json.Marshal(controlMessage{Type: "subscribe", Channel: channel, ProductIDs: symbols})
}

func unsubscribeMessage(channel string, symbols []string) ([]byte, error) {
	return json.Marshal(controlMessage{Type: "unsubscribe", Channel: channel, ProductIDs: symbols})
}

// wireLevel is one priced-level delta as it arrives on the wire.
type wireLevel struct {
	Side        string `json:"side"`
	PriceLevel  string `json:"price_level"`
	NewQuantity string `json:"new_quantity"`
}

// wireEvent is one element of an inbound message's "events" array.
type wireEvent struct {
	Type      string      `json:"type"`
	ProductID string      `json:"product_id"`
	Updates   []wireLevel `json:"updates"`
}

// wireMessage is the full inbound frame shape per spec.md §6.
type wireMessage struct {
	SequenceNum *int64      `json:"sequence_num"`
	Events      []wireEvent `json:"events"`
}

// decode parses one inbound frame into a statemachine.Event, tagging
// receivedAt as the local wall-clock instant the caller observed the
// frame. Returns *statemachine.MalformedEvent on any decode/schema failure.
func decode(raw []byte, receivedAt time.Time) (statemachine.Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return statemachine.Event{}, &statemachine.MalformedEvent{Reason: fmt.Sprintf("invalid JSON frame: %v", err)}
	}
	if len(msg.Events) == 0 {
		return statemachine.Event{}, &statemachine.MalformedEvent{Reason: "frame carries no events"}
	}

	evt := msg.Events[0]
	out := statemachine.Event{
		Symbol:     evt.ProductID,
		ReceivedAt: receivedAt,
	}

	switch evt.Type {
	case "subscriptions":
		out.Type = statemachine.EventSubscriptions
		return out, nil
	case "snapshot":
		out.Type = statemachine.EventSnapshot
	case "update":
		out.Type = statemachine.EventUpdate
	case "error":
		out.Type = statemachine.EventError
		return out, nil
	default:
		return statemachine.Event{}, &statemachine.MalformedEvent{Symbol: evt.ProductID, Reason: "unrecognized event type: " + evt.Type}
	}

	if msg.SequenceNum != nil {
		out.Sequence = *msg.SequenceNum
	}

	out.Updates = make([]statemachine.LevelChange, 0, len(evt.Updates))
	for _, lvl := range evt.Updates {
		var side statemachine.Side
		switch lvl.Side {
		case "bid":
			side = statemachine.SideBid
		case "offer":
			side = statemachine.SideOffer
		default:
			return statemachine.Event{}, &statemachine.MalformedEvent{Symbol: evt.ProductID, Reason: "unrecognized side: " + lvl.Side}
		}
		out.Updates = append(out.Updates, statemachine.LevelChange{
			Side:    side,
			Price:   lvl.PriceLevel,
			NewSize: lvl.NewQuantity,
		})
	}

	return out, nil
}
