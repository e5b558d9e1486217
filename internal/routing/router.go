package routing

import (
	"fmt"

	"vibration-backend/internal/models"
)

// DispatchMode classifies how a feature consumes frames.
type DispatchMode int

const (
	// AllChannel features receive one event per frame carrying every
	// channel array.
	AllChannel DispatchMode = iota
	// PerChannel features receive one event per registered channel per
	// frame, carrying only that channel's samples.
	PerChannel
)

// featureSpec declares one known feature and its dispatch mode. The set of
// features is fixed; registrations against unknown names are rejected.
var featureSpecs = []struct {
	Name string
	Mode DispatchMode
}{
	{"Time View", AllChannel},
	{"Orbit", AllChannel},
	{"Waterfall", AllChannel},
	{"FFT", PerChannel},
	{"Filter", PerChannel},
	{"Harmonics", PerChannel},
	{"Trend", PerChannel},
}

// Table is the validated feature classification built at startup.
type Table struct {
	modes map[string]DispatchMode
}

// NewTable builds the feature table from the static declarations,
// rejecting duplicates and empty names.
func NewTable() (*Table, error) {
	modes := make(map[string]DispatchMode, len(featureSpecs))
	for _, spec := range featureSpecs {
		if spec.Name == "" {
			return nil, fmt.Errorf("routing: feature with empty name")
		}
		if _, dup := modes[spec.Name]; dup {
			return nil, fmt.Errorf("routing: duplicate feature %q", spec.Name)
		}
		modes[spec.Name] = spec.Mode
	}
	return &Table{modes: modes}, nil
}

// Router fans decoded frames out to registered feature consumers. The
// registry is keyed feature -> model -> channel selector; it is owned by
// the worker goroutine and must only be mutated from there.
type Router struct {
	table    *Table
	registry map[string]map[string]map[string]struct{}
	emit     func(*models.RouteEvent)
}

// NewRouter creates a router that hands events to emit. The emit function
// must not block; asynchronous delivery to consumers is the caller's
// responsibility.
func NewRouter(table *Table, emit func(*models.RouteEvent)) *Router {
	return &Router{
		table:    table,
		registry: make(map[string]map[string]map[string]struct{}),
		emit:     emit,
	}
}

// Register adds a (feature, model, selector) registration. Selector is a
// channel name, a tacho label, or models.AllChannels. Re-registering is a
// no-op.
func (r *Router) Register(feature, model, selector string) error {
	if _, known := r.table.modes[feature]; !known {
		return fmt.Errorf("routing: unknown feature %q", feature)
	}
	byModel, ok := r.registry[feature]
	if !ok {
		byModel = make(map[string]map[string]struct{})
		r.registry[feature] = byModel
	}
	selectors, ok := byModel[model]
	if !ok {
		selectors = make(map[string]struct{})
		byModel[model] = selectors
	}
	selectors[selector] = struct{}{}
	return nil
}

// Unregister removes a registration, pruning empty model and feature
// entries. Unknown registrations are ignored.
func (r *Router) Unregister(feature, model, selector string) {
	byModel, ok := r.registry[feature]
	if !ok {
		return
	}
	selectors, ok := byModel[model]
	if !ok {
		return
	}
	delete(selectors, selector)
	if len(selectors) == 0 {
		delete(byModel, model)
	}
	if len(byModel) == 0 {
		delete(r.registry, feature)
	}
}

// Route dispatches one decoded frame to every matching registration.
// meta supplies the declared channel names for per-channel resolution.
func (r *Router) Route(f *models.DecodedFrame, meta *models.Model) {
	for feature, byModel := range r.registry {
		selectors, ok := byModel[f.Model]
		if !ok {
			continue
		}
		switch r.table.modes[feature] {
		case AllChannel:
			r.emit(&models.RouteEvent{
				Feature:    feature,
				Topic:      f.Topic,
				Model:      f.Model,
				Channel:    models.AllChannels,
				Channels:   f.Channels,
				SampleRate: f.SampleRate,
				FrameIndex: f.FrameIndex,
			})
		case PerChannel:
			_, wantAll := selectors[models.AllChannels]
			for idx, samples := range f.Channels {
				name := channelName(meta, f, idx)
				if !wantAll {
					if _, want := selectors[name]; !want {
						continue
					}
				}
				r.emit(&models.RouteEvent{
					Feature:    feature,
					Topic:      f.Topic,
					Model:      f.Model,
					Channel:    name,
					Samples:    samples,
					SampleRate: f.SampleRate,
					FrameIndex: f.FrameIndex,
				})
			}
		}
	}
}

// channelName resolves the selector name of channel idx: the declared
// project name for main channels, the synthesized tacho labels for the
// trailing tacho channels.
func channelName(meta *models.Model, f *models.DecodedFrame, idx int) string {
	if idx < f.MainChannels {
		if meta != nil && idx < len(meta.Channels) {
			return meta.Channels[idx].ChannelName
		}
		return fmt.Sprintf("Channel_%d", idx+1)
	}
	if idx-f.MainChannels == 0 {
		return models.TachoFreq
	}
	return models.TachoTrig
}
