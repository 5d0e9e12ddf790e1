package logger

import (
	"encoding/json"
	"fmt"

	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

const defaultTimeFormat = "2006-01-02 15:04:05"

// SSEPublisher is the part of sse.Server the writer needs.
type SSEPublisher interface {
	Publish(topic string, event *sse.Event)
}

// LogMessage is the shape published to the "logs" stream.
type LogMessage struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (m LogMessage) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

func defaultPartsOrder() []string {
	return []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
}

// SSEWriter decodes zerolog JSON lines and republishes them as SSE events.
type SSEWriter struct {
	SSE        SSEPublisher
	TimeFormat string
	PartsOrder []string
}

func NewSSEWriter(pub SSEPublisher, options ...func(w *SSEWriter)) SSEWriter {
	w := SSEWriter{
		SSE:        pub,
		TimeFormat: defaultTimeFormat,
		PartsOrder: defaultPartsOrder(),
	}

	for _, opt := range options {
		opt(&w)
	}

	return w
}

func (w SSEWriter) Write(p []byte) (n int, err error) {
	if w.SSE == nil {
		return len(p), nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(p, &fields); err != nil {
		// non-JSON lines are passed through untouched
		w.SSE.Publish("logs", &sse.Event{Data: p})
		return len(p), nil
	}

	msg := LogMessage{
		Time:    fmt.Sprintf("%v", fields[zerolog.TimestampFieldName]),
		Level:   fmt.Sprintf("%v", fields[zerolog.LevelFieldName]),
		Message: fmt.Sprintf("%v", fields[zerolog.MessageFieldName]),
	}

	data, err := msg.Bytes()
	if err != nil {
		return len(p), nil
	}

	w.SSE.Publish("logs", &sse.Event{Data: data})

	return len(p), nil
}
