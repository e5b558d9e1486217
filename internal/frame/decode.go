package frame

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vibration-backend/internal/models"
)

// Packed binary layout: 100 header words (unsigned 16-bit little-endian)
// followed by the sample body. See demux.go for the body layout.
const (
	headerWords     = 100
	minPayloadBytes = 2 * headerWords

	// Frames below this index are DAQ warm-up; their DC calibration
	// words are not meaningful and must not be extracted.
	warmupFrames = 100

	gapWordOffset = 15
	gapWordCount  = 14
	dcWordOffset  = 17
	dcWordCount   = 11
)

// Decode errors. The worker drops the frame on any of these; none is fatal.
var (
	ErrOddLength     = errors.New("frame: payload has odd byte length")
	ErrTooShort      = errors.New("frame: payload shorter than header")
	ErrInvalidHeader = errors.New("frame: invalid header field")
	ErrBodyMismatch  = errors.New("frame: body is not a whole number of channel blocks")
	ErrBadJSON       = errors.New("frame: malformed json frame")
)

// jsonFrame is the JSON fallback encoding used by simulator models that
// cannot emit the packed binary format.
type jsonFrame struct {
	Values        [][]float64 `json:"values"`
	SampleRate    int         `json:"sample_rate"`
	FrameIndex    uint32      `json:"frame_index"`
	MainChannels  int         `json:"main_channels"`
	TachoChannels int         `json:"tacho_channels"`
}

// Decode parses a raw payload into a DecodedFrame. The encoding is chosen
// by best-effort: a payload that unmarshals as a JSON frame is treated as
// one, everything else goes through the packed binary path. Topic and model
// attribution is left to the caller.
func Decode(payload []byte) (*models.DecodedFrame, error) {
	if f, err := decodeJSON(payload); err == nil {
		return f, nil
	}
	return decodeBinary(payload)
}

func decodeJSON(payload []byte) (*models.DecodedFrame, error) {
	var jf jsonFrame
	if err := json.Unmarshal(payload, &jf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadJSON, err)
	}
	if jf.Values == nil || jf.MainChannels <= 0 || len(jf.Values) < jf.MainChannels {
		return nil, fmt.Errorf("%w: values missing or fewer than main_channels", ErrBadJSON)
	}
	if jf.TachoChannels < 0 || jf.TachoChannels > 2 {
		return nil, fmt.Errorf("%w: tacho_channels=%d", ErrInvalidHeader, jf.TachoChannels)
	}

	// JSON frames arrive already split per channel. Use the declared main
	// channels plus however many tacho arrays were actually sent.
	tacho := jf.TachoChannels
	if avail := len(jf.Values) - jf.MainChannels; avail < tacho {
		tacho = avail
	}
	channels := jf.Values[:jf.MainChannels+tacho]
	spc := 0
	if len(channels) > 0 {
		spc = len(channels[0])
	}
	// Every channel must carry exactly samplesPerChannel samples; ragged
	// arrays would break the flatten/resplit layout downstream.
	for i, ch := range channels {
		if len(ch) != spc {
			return nil, fmt.Errorf("%w: channel %d has %d samples, want %d", ErrBadJSON, i, len(ch), spc)
		}
	}

	return &models.DecodedFrame{
		FrameIndex:        jf.FrameIndex,
		MainChannels:      jf.MainChannels,
		TachoChannels:     tacho,
		SamplesPerChannel: spc,
		SampleRate:        jf.SampleRate,
		Channels:          channels,
		CreatedAt:         time.Now(),
	}, nil
}

func decodeBinary(payload []byte) (*models.DecodedFrame, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(payload))
	}
	if len(payload) < minPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTooShort, len(payload), minPayloadBytes)
	}

	words := make([]uint16, len(payload)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}

	frameIndex := uint32(words[1])<<16 | uint32(words[0])
	mainChannels := int(words[2])
	sampleRate := int(words[3])
	tachoChannels := int(words[6])

	if mainChannels <= 0 || sampleRate <= 0 || tachoChannels > 2 {
		return nil, fmt.Errorf("%w: mainChannels=%d sampleRate=%d tachoChannels=%d",
			ErrInvalidHeader, mainChannels, sampleRate, tachoChannels)
	}

	gaps := scaleSigned(words[gapWordOffset : gapWordOffset+gapWordCount])
	var dc []float64
	if frameIndex >= warmupFrames {
		dc = scaleSigned(words[dcWordOffset : dcWordOffset+dcWordCount])
	}

	body := words[headerWords:]
	total := mainChannels + tachoChannels
	spc := len(body) / total
	if spc*total != len(body) {
		return nil, fmt.Errorf("%w: %d body words across %d channels", ErrBodyMismatch, len(body), total)
	}

	return &models.DecodedFrame{
		FrameIndex:        frameIndex,
		MainChannels:      mainChannels,
		TachoChannels:     tachoChannels,
		SamplesPerChannel: spc,
		SampleRate:        sampleRate,
		Channels:          Demux(body, mainChannels, tachoChannels, spc),
		GapVoltages:       gaps,
		MeasuredDC:        dc,
		CreatedAt:         time.Now(),
	}, nil
}

// scaleSigned reinterprets header words as signed 16-bit values scaled by
// 1/100, the fixed-point encoding the DAQ uses for voltages.
func scaleSigned(words []uint16) []float64 {
	out := make([]float64, len(words))
	for i, w := range words {
		v := int(w)
		if v >= 32768 {
			v -= 65536
		}
		out[i] = float64(v) / 100.0
	}
	return out
}
