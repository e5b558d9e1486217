package frame

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPayload packs a header plus body into wire bytes.
func buildPayload(frameIndex uint32, mainChannels, sampleRate, tachoChannels int, body []uint16) []byte {
	header := make([]uint16, headerWords)
	header[0] = uint16(frameIndex & 0xFFFF)
	header[1] = uint16(frameIndex >> 16)
	header[2] = uint16(mainChannels)
	header[3] = uint16(sampleRate)
	header[6] = uint16(tachoChannels)

	words := append(header, body...)
	buf := make([]byte, 2*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[2*i:], w)
	}
	return buf
}

func TestDecodeBinaryExactLength(t *testing.T) {
	// 4 main + 2 tacho channels at 256 samples each: 100 header words +
	// 1536 body words = 3272 bytes.
	body := make([]uint16, 6*256)
	payload := buildPayload(500, 4, 1000, 2, body)
	require.Len(t, payload, 3272)

	f, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), f.FrameIndex)
	assert.Equal(t, 4, f.MainChannels)
	assert.Equal(t, 2, f.TachoChannels)
	assert.Equal(t, 1000, f.SampleRate)
	assert.Equal(t, 256, f.SamplesPerChannel)
	assert.Len(t, f.Channels, 6)

	t.Run("TwoBytesShort", func(t *testing.T) {
		_, err := Decode(payload[:3270])
		assert.ErrorIs(t, err, ErrBodyMismatch)
	})

	t.Run("TwoBytesLong", func(t *testing.T) {
		long := append(append([]byte{}, payload...), 0x00, 0x00)
		_, err := Decode(long)
		assert.ErrorIs(t, err, ErrBodyMismatch)
	})
}

func TestDecodeOddLength(t *testing.T) {
	payload := make([]byte, 19)
	_, err := Decode(payload)
	assert.ErrorIs(t, err, ErrOddLength)
}

func TestDecodeTooShort(t *testing.T) {
	payload := make([]byte, 120)
	_, err := Decode(payload)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeInvalidHeader(t *testing.T) {
	body := make([]uint16, 4*16)

	t.Run("ZeroMainChannels", func(t *testing.T) {
		_, err := Decode(buildPayload(1, 0, 1000, 0, body))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("ZeroSampleRate", func(t *testing.T) {
		_, err := Decode(buildPayload(1, 4, 0, 0, body))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("ThreeTachoChannels", func(t *testing.T) {
		_, err := Decode(buildPayload(1, 4, 1000, 3, body))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestGapVoltageExtraction(t *testing.T) {
	body := make([]uint16, 4*8)
	payload := buildPayload(5, 4, 1000, 0, body)

	// Patch words[15..28]: alternate +1.23 and -1.00.
	for i := 0; i < gapWordCount; i++ {
		w := uint16(123)
		if i%2 == 1 {
			w = 65436 // -100 as signed 16-bit
		}
		binary.LittleEndian.PutUint16(payload[2*(gapWordOffset+i):], w)
	}

	f, err := Decode(payload)
	require.NoError(t, err)

	// Gap voltages come out on warm-up frames too.
	require.Len(t, f.GapVoltages, 14)
	for i, v := range f.GapVoltages {
		if i%2 == 0 {
			assert.InDelta(t, 1.23, v, 1e-9)
		} else {
			assert.InDelta(t, -1.0, v, 1e-9)
		}
	}
}

func TestMeasuredDCExtraction(t *testing.T) {
	body := make([]uint16, 4*8)

	t.Run("WarmupFrameHasNone", func(t *testing.T) {
		f, err := Decode(buildPayload(99, 4, 1000, 0, body))
		require.NoError(t, err)
		assert.Nil(t, f.MeasuredDC)
	})

	t.Run("SteadyStateFrameHasEleven", func(t *testing.T) {
		payload := buildPayload(100, 4, 1000, 0, body)
		for i := 0; i < dcWordCount; i++ {
			binary.LittleEndian.PutUint16(payload[2*(dcWordOffset+i):], uint16(200+i))
		}

		f, err := Decode(payload)
		require.NoError(t, err)
		require.Len(t, f.MeasuredDC, 11)
		for i, v := range f.MeasuredDC {
			assert.InDelta(t, float64(200+i)/100.0, v, 1e-9)
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		payload, err := json.Marshal(map[string]any{
			"values":         [][]float64{{1, 2}, {3, 4}, {5, 6}},
			"sample_rate":    2000,
			"frame_index":    42,
			"main_channels":  2,
			"tacho_channels": 1,
		})
		require.NoError(t, err)

		f, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, uint32(42), f.FrameIndex)
		assert.Equal(t, 2, f.MainChannels)
		assert.Equal(t, 1, f.TachoChannels)
		assert.Equal(t, 2, f.SamplesPerChannel)
		assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, f.Channels)
		assert.Nil(t, f.GapVoltages)
		assert.Nil(t, f.MeasuredDC)
	})

	t.Run("FewerValuesThanMainChannels", func(t *testing.T) {
		payload := []byte(`{"values":[[1,2]],"sample_rate":2000,"frame_index":1,"main_channels":4}`)
		_, err := Decode(payload)
		assert.Error(t, err)
	})

	t.Run("RaggedChannelArrays", func(t *testing.T) {
		payload := []byte(`{"values":[[1,2,3,4],[5]],"sample_rate":2000,"frame_index":1,"main_channels":2}`)
		_, err := Decode(payload)
		assert.Error(t, err)
	})

	t.Run("RaggedTachoArray", func(t *testing.T) {
		payload := []byte(`{"values":[[1,2],[3,4],[5,6,7]],"sample_rate":2000,"frame_index":1,"main_channels":2,"tacho_channels":1}`)
		_, err := Decode(payload)
		assert.Error(t, err)
	})

	t.Run("ValuesNotAList", func(t *testing.T) {
		payload := []byte(`{"values":5,"sample_rate":2000,"frame_index":1,"main_channels":1}`)
		_, err := Decode(payload)
		assert.Error(t, err)
	})
}

func TestMalformedPayloadDoesNotPoisonNextFrame(t *testing.T) {
	_, err := Decode(make([]byte, 19))
	require.Error(t, err)

	body := make([]uint16, 4*32)
	f, err := Decode(buildPayload(7, 4, 1000, 0, body))
	require.NoError(t, err)
	assert.Equal(t, 32, f.SamplesPerChannel)
}
