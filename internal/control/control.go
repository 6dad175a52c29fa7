package control

import "time"

// Request is one line of JSON sent to the control socket.
type Request struct {
	Op string `json:"op"`
}

type Status struct {
	Running     bool         `json:"running"`
	UptimeSec   float64      `json:"uptime_sec"`
	Device      string       `json:"device,omitempty"`
	State       string       `json:"state,omitempty"`
	Utterances  uint64       `json:"utterances"`
	QueueDepth  int          `json:"queue_depth"`
	LastHeard   time.Time    `json:"last_heard,omitzero"`
	Transcripts []Transcript `json:"transcripts"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Transcript is one recognised utterance as shown by status.
type Transcript struct {
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Steps     []string  `json:"steps,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
