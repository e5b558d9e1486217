package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibration-backend/internal/models"
)

func newTestFrame() *models.DecodedFrame {
	return &models.DecodedFrame{
		Topic:             "plant/m1",
		Model:             "M1",
		FrameIndex:        500,
		MainChannels:      4,
		TachoChannels:     2,
		SamplesPerChannel: 4,
		SampleRate:        1000,
		Channels: [][]float64{
			{1, 1, 1, 1},
			{2, 2, 2, 2},
			{3, 3, 3, 3},
			{4, 4, 4, 4},
			{50, 50, 50, 50},
			{60, 60, 60, 60},
		},
	}
}

func newTestMeta() *models.Model {
	return &models.Model{
		Name:    "M1",
		TagName: "plant/m1",
		Channels: []models.Channel{
			{ChannelName: "Ch1"}, {ChannelName: "ChX"},
			{ChannelName: "Ch3"}, {ChannelName: "Ch4"},
		},
	}
}

func newTestRouter(t *testing.T) (*Router, *[]*models.RouteEvent) {
	t.Helper()
	table, err := NewTable()
	require.NoError(t, err)

	var events []*models.RouteEvent
	r := NewRouter(table, func(ev *models.RouteEvent) {
		events = append(events, ev)
	})
	return r, &events
}

func TestAllChannelDispatch(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("Time View", "M1", models.AllChannels))

	f := newTestFrame()
	r.Route(f, newTestMeta())

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, "Time View", ev.Feature)
	assert.Equal(t, models.AllChannels, ev.Channel)
	assert.Equal(t, f.Channels, ev.Channels)
	assert.Nil(t, ev.Samples)
	assert.Equal(t, uint32(500), ev.FrameIndex)

	t.Run("NoEventsAfterUnregister", func(t *testing.T) {
		*events = nil
		r.Unregister("Time View", "M1", models.AllChannels)
		r.Route(f, newTestMeta())
		assert.Empty(t, *events)
	})
}

func TestAllChannelIgnoresOtherModels(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("Time View", "M2", models.AllChannels))

	r.Route(newTestFrame(), newTestMeta())
	assert.Empty(t, *events)
}

func TestPerChannelDispatch(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("FFT", "M1", "ChX"))

	f := newTestFrame()
	r.Route(f, newTestMeta())

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, "FFT", ev.Feature)
	assert.Equal(t, "ChX", ev.Channel)
	assert.Equal(t, f.Channels[1], ev.Samples)
	assert.Nil(t, ev.Channels)

	// Exactly once per frame, every frame.
	r.Route(f, newTestMeta())
	assert.Len(t, *events, 2)
}

func TestPerChannelTachoLabels(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("FFT", "M1", models.TachoFreq))
	require.NoError(t, r.Register("FFT", "M1", models.TachoTrig))

	f := newTestFrame()
	r.Route(f, newTestMeta())

	require.Len(t, *events, 2)
	assert.Equal(t, models.TachoFreq, (*events)[0].Channel)
	assert.Equal(t, f.Channels[4], (*events)[0].Samples)
	assert.Equal(t, models.TachoTrig, (*events)[1].Channel)
	assert.Equal(t, f.Channels[5], (*events)[1].Samples)
}

func TestPerChannelAllSelector(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("Harmonics", "M1", models.AllChannels))

	r.Route(newTestFrame(), newTestMeta())

	// One event per channel, tacho included.
	require.Len(t, *events, 6)
	names := make([]string, 0, 6)
	for _, ev := range *events {
		names = append(names, ev.Channel)
	}
	assert.Equal(t, []string{"Ch1", "ChX", "Ch3", "Ch4", models.TachoFreq, models.TachoTrig}, names)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("FFT", "M1", "ChX"))
	require.NoError(t, r.Register("FFT", "M1", "ChX"))

	r.Route(newTestFrame(), newTestMeta())
	assert.Len(t, *events, 1)
}

func TestRegisterUnknownFeature(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Error(t, r.Register("Bogus", "M1", models.AllChannels))
}

func TestUnregisterPrunesEmptyEntries(t *testing.T) {
	r, _ := newTestRouter(t)
	require.NoError(t, r.Register("FFT", "M1", "ChX"))

	r.Unregister("FFT", "M1", "ChX")
	assert.Empty(t, r.registry)

	// Unregistering again is harmless.
	r.Unregister("FFT", "M1", "ChX")
	r.Unregister("FFT", "M9", "ChX")
}

func TestChannelNameFallback(t *testing.T) {
	r, events := newTestRouter(t)
	require.NoError(t, r.Register("FFT", "M1", models.AllChannels))

	// Metadata declares fewer channels than the frame carries.
	meta := &models.Model{Name: "M1", Channels: []models.Channel{{ChannelName: "Ch1"}}}
	f := newTestFrame()
	r.Route(f, meta)

	require.Len(t, *events, 6)
	assert.Equal(t, "Ch1", (*events)[0].Channel)
	assert.Equal(t, "Channel_2", (*events)[1].Channel)
}
