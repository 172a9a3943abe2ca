package sse

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/a2anet/a2anet-go/pkg/stream"
)

/*
Streamer writes a task's update events to an HTTP response as
server-sent events.  Each event becomes a frame of the form:

id: {seq}
event: {kind}
data: {json}

The SSE id field carries the event sequence number, so a client that
reconnects can resume from its last seen cursor without gaps.
*/
type Streamer struct {
	heartbeat time.Duration
}

func NewStreamer() *Streamer {
	return &Streamer{heartbeat: 25 * time.Second}
}

// NewTestStreamer uses a short heartbeat interval for tests.
func NewTestStreamer() *Streamer {
	return &Streamer{heartbeat: 100 * time.Millisecond}
}

/*
Stream blocks until the event channel closes or the client disconnects.
A heartbeat comment is written between events to keep intermediary
proxies from timing out the connection.
*/
func (streamer *Streamer) Stream(
	w http.ResponseWriter, r *http.Request, events <-chan stream.Event,
) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamer.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			if err := writeFrame(w, event); err != nil {
				return
			}

			flusher.Flush()

			if event.Final {
				return
			}
		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, event stream.Event) error {
	data, err := json.Marshal(event)

	if err != nil {
		return err
	}

	frame := make([]byte, 0, len(data)+64)
	frame = append(frame, "id: "...)
	frame = strconv.AppendUint(frame, event.Seq, 10)
	frame = append(frame, "\nevent: "...)
	frame = append(frame, event.Kind...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	_, err = w.Write(frame)
	return err
}
