package models

import "time"

// Channel selector sentinel and synthesized tacho channel labels.
// Tacho channels have no project-declared name, so the router refers to
// them by these fixed labels.
const (
	AllChannels = "ALL"
	TachoFreq   = "Tacho_1"
	TachoTrig   = "Tacho_2"
)

// RawMessage is an inbound transport message before decoding. It only
// lives inside the frame queue.
type RawMessage struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// DecodedFrame is one decoded unit of telemetry: every channel of a model
// for SamplesPerChannel samples. Channels holds the declared main channels
// in project order, then the tacho "frequency" channel if present, then the
// tacho "trigger" channel if present.
type DecodedFrame struct {
	Topic             string
	Model             string
	FrameIndex        uint32
	MainChannels      int
	TachoChannels     int
	SamplesPerChannel int
	SampleRate        int
	Channels          [][]float64

	// GapVoltages holds the 14 per-channel gap voltages carried in the
	// binary header; nil for JSON frames.
	GapVoltages []float64

	// MeasuredDC holds the 11 DC calibration values; nil for JSON frames
	// and for warm-up frames (FrameIndex < 100).
	MeasuredDC []float64

	CreatedAt time.Time
}

// RouteEvent is delivered to a registered feature consumer. For an
// all-channel feature, Channel is AllChannels and Channels carries every
// array of the frame; for a per-channel feature, Channel names the single
// channel and Samples carries its data.
type RouteEvent struct {
	Feature    string
	Topic      string
	Model      string
	Channel    string
	Channels   [][]float64
	Samples    []float64
	SampleRate int
	FrameIndex uint32
}

// GapReport carries the gap voltages extracted from one binary frame.
type GapReport struct {
	Model  string
	Topic  string
	Values []float64
}

// Status is a connectivity / pipeline status event.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusStorageError Status = "storage_error"
)

// HistoryMessage is the flattened frame document handed to the storage
// sink while a model is recording. Field names match the dashboard's
// historical store, including the "tacoChannelCount" spelling.
type HistoryMessage struct {
	Topic            string    `json:"topic"`
	Filename         string    `json:"filename"`
	FrameIndex       uint32    `json:"frameIndex"`
	Message          []float64 `json:"message"`
	NumberOfChannels int       `json:"numberOfChannels"`
	SamplingRate     int       `json:"samplingRate"`
	SamplingSize     int       `json:"samplingSize"`
	TacoChannelCount int       `json:"tacoChannelCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
