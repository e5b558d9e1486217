package recording

import (
	"context"
	"log"
	"time"

	"vibration-backend/internal/models"
)

// StorageSink is the storage collaborator. Append failures are surfaced
// to the caller; the sink treats them as non-fatal.
type StorageSink interface {
	AppendHistoryMessage(ctx context.Context, project, model string, msg *models.HistoryMessage) error
}

// Sink forwards decoded frames to storage for models with an active
// recording session. Sessions are owned by the worker goroutine; all
// mutation arrives there as queued commands.
type Sink struct {
	project  string
	store    StorageSink
	sessions map[string]string // model name -> filename
	onStatus func(models.Status)
}

func NewSink(project string, store StorageSink, onStatus func(models.Status)) *Sink {
	return &Sink{
		project:  project,
		store:    store,
		sessions: make(map[string]string),
		onStatus: onStatus,
	}
}

// StartSaving opens (or retargets) the recording session for a model.
func (s *Sink) StartSaving(model, filename string) {
	s.sessions[model] = filename
	log.Printf("RecordingSink: saving model %q to %q", model, filename)
}

// StopSaving closes the session for a model. No-op if none is active.
func (s *Sink) StopSaving(model string) {
	if _, ok := s.sessions[model]; !ok {
		return
	}
	delete(s.sessions, model)
	log.Printf("RecordingSink: stopped saving model %q", model)
}

// Active reports whether a model has a recording session.
func (s *Sink) Active(model string) bool {
	_, ok := s.sessions[model]
	return ok
}

// Record appends one decoded frame to storage if its model is recording.
// Storage failure is logged and reported as a status event; the pipeline
// is never halted.
func (s *Sink) Record(ctx context.Context, f *models.DecodedFrame) {
	filename, ok := s.sessions[f.Model]
	if !ok {
		return
	}
	if s.store == nil {
		log.Printf("RecordingSink: no storage configured, dropping frame for model %q", f.Model)
		return
	}

	now := time.Now()
	msg := &models.HistoryMessage{
		Topic:            f.Topic,
		Filename:         filename,
		FrameIndex:       f.FrameIndex,
		Message:          Flatten(f),
		NumberOfChannels: f.MainChannels,
		SamplingRate:     f.SampleRate,
		SamplingSize:     f.SamplesPerChannel,
		TacoChannelCount: f.TachoChannels,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        now,
	}

	if err := s.store.AppendHistoryMessage(ctx, s.project, f.Model, msg); err != nil {
		log.Printf("RecordingSink: append failed for model %q: %v", f.Model, err)
		if s.onStatus != nil {
			s.onStatus(models.StatusStorageError)
		}
	}
}

// Flatten concatenates the frame's channels into one array: main channels
// in project order, then the frequency block, then the trigger block. The
// layout mirrors the wire body after demux and is what the dashboard's
// replay path expects to resplit.
func Flatten(f *models.DecodedFrame) []float64 {
	flat := make([]float64, 0, len(f.Channels)*f.SamplesPerChannel)
	for _, ch := range f.Channels {
		flat = append(flat, ch...)
	}
	return flat
}
