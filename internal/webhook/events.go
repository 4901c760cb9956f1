// Package webhook turns signed LINE webhook batches into counter increments
// and report replies.
package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
)

// ErrMalformedPayload is returned for bodies that are not a webhook batch.
var ErrMalformedPayload = errors.New("malformed webhook payload")

const (
	EventTypeMessage = "message"

	SourceTypeUser  = "user"
	SourceTypeGroup = "group"
	SourceTypeRoom  = "room"

	MessageTypeText = "text"
)

// Batch is one webhook delivery.
type Batch struct {
	// Destination is the bot's own user id.
	Destination string
	Events      []Event
}

type Event struct {
	Type           string
	WebhookEventID string
	ReplyToken     string
	Timestamp      time.Time
	Redelivery     bool
	Source         Source
	Message        *Message
}

type Source struct {
	Type    string
	UserID  string
	GroupID string
	RoomID  string
}

type Message struct {
	ID         string
	Type       string
	Text       string
	Mentionees []Mentionee
}

type Mentionee struct {
	Type   string
	UserID string
	IsSelf bool
}

// ParseBatch decodes body with p. Values are copied out, so p may be reused
// once ParseBatch returns.
func ParseBatch(p *fastjson.Parser, body []byte) (Batch, error) {
	v, err := p.ParseBytes(body)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if v.Type() != fastjson.TypeObject {
		return Batch{}, fmt.Errorf("%w: root must be an object", ErrMalformedPayload)
	}

	eventsValue := v.Get("events")
	if eventsValue == nil || eventsValue.Type() != fastjson.TypeArray {
		return Batch{}, fmt.Errorf("%w: field \"events\" must be an array", ErrMalformedPayload)
	}

	items, _ := eventsValue.Array()
	batch := Batch{
		Destination: string(v.GetStringBytes("destination")),
		Events:      make([]Event, 0, len(items)),
	}

	for i, item := range items {
		if item.Type() != fastjson.TypeObject {
			return Batch{}, fmt.Errorf("%w: event %d must be an object", ErrMalformedPayload, i)
		}
		batch.Events = append(batch.Events, parseEvent(item))
	}

	return batch, nil
}

func parseEvent(v *fastjson.Value) Event {
	ev := Event{
		Type:           string(v.GetStringBytes("type")),
		WebhookEventID: string(v.GetStringBytes("webhookEventId")),
		ReplyToken:     string(v.GetStringBytes("replyToken")),
		Redelivery:     v.GetBool("deliveryContext", "isRedelivery"),
		Source: Source{
			Type:    string(v.GetStringBytes("source", "type")),
			UserID:  string(v.GetStringBytes("source", "userId")),
			GroupID: string(v.GetStringBytes("source", "groupId")),
			RoomID:  string(v.GetStringBytes("source", "roomId")),
		},
	}

	if ms := v.GetInt64("timestamp"); ms > 0 {
		ev.Timestamp = time.UnixMilli(ms)
	}

	if m := v.Get("message"); m != nil && m.Type() == fastjson.TypeObject {
		msg := &Message{
			ID:   string(m.GetStringBytes("id")),
			Type: string(m.GetStringBytes("type")),
			Text: string(m.GetStringBytes("text")),
		}
		for _, mv := range m.GetArray("mention", "mentionees") {
			msg.Mentionees = append(msg.Mentionees, Mentionee{
				Type:   string(mv.GetStringBytes("type")),
				UserID: string(mv.GetStringBytes("userId")),
				IsSelf: mv.GetBool("isSelf"),
			})
		}
		ev.Message = msg
	}

	return ev
}
