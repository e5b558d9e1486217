package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"vibration-backend/internal/frame"
	"vibration-backend/internal/models"
	mqttx "vibration-backend/internal/mqtt"
	"vibration-backend/internal/pipeline"
	"vibration-backend/internal/project"
	"vibration-backend/internal/recording"
	"vibration-backend/internal/routing"
)

// Callbacks are the consumer-facing event outlets. They are invoked from
// the dispatcher goroutine, never from the MQTT callback or the frame
// worker; a consumer living on another execution context (a UI thread)
// must marshal from here itself.
type Callbacks struct {
	OnRoute      func(*models.RouteEvent)
	OnStatus     func(models.Status)
	OnGapValues  func(*models.GapReport)
	OnMeasuredDC func([]float64)
}

// Config holds the handler configuration.
type Config struct {
	// Project is the active project this handler serves. Switching
	// projects means stopping this handler and constructing a new one.
	Project string

	// MQTT is the transport configuration. An empty broker leaves the
	// handler without a transport; messages then only arrive via Enqueue.
	MQTT mqttx.ClientConfig

	QueueSize       int
	EventBufferSize int
	StopTimeout     time.Duration
}

const (
	defaultEventBufferSize = 256
	defaultStopTimeout     = 3 * time.Second
	summaryLogInterval     = 30 * time.Second
	commandBufferSize      = 64
)

// event is one item on the dispatch channel; exactly one field is set.
type event struct {
	route  *models.RouteEvent
	status models.Status
	gaps   *models.GapReport
	dc     []float64
}

// TelemetryHandler is the ingestion, decode, and fan-out engine for one
// active project. A single worker goroutine drains the frame queue,
// resolves topics against project metadata, decodes and demuxes frames,
// and hands results to the recording sink and the feature router. All
// registry and session mutation happens on the worker via queued commands.
type TelemetryHandler struct {
	cfg       Config
	provider  project.MetadataProvider
	resolver  *project.Resolver
	queue     *pipeline.Queue
	router    *routing.Router
	sink      *recording.Sink
	callbacks Callbacks

	client *mqttx.Client
	subs   *mqttx.SubscriptionManager
	pub    *mqttx.Publisher

	commands chan func()
	events   chan event
	stop     chan struct{}

	workerDone   chan struct{}
	dispatchDone chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewTelemetryHandler wires the pipeline for one project. store may be nil
// when recording is not needed; frames of a saving model are then dropped
// with a log instead of persisted.
func NewTelemetryHandler(cfg Config, provider project.MetadataProvider, store recording.StorageSink, callbacks Callbacks) (*TelemetryHandler, error) {
	table, err := routing.NewTable()
	if err != nil {
		return nil, err
	}

	h := &TelemetryHandler{
		cfg:          cfg,
		provider:     provider,
		resolver:     project.NewResolver(cfg.Project, provider),
		queue:        pipeline.NewQueue(cfg.QueueSize),
		callbacks:    callbacks,
		commands:     make(chan func(), commandBufferSize),
		stop:         make(chan struct{}),
		workerDone:   make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}

	bufSize := cfg.EventBufferSize
	if bufSize <= 0 {
		bufSize = defaultEventBufferSize
	}
	h.events = make(chan event, bufSize)

	h.router = routing.NewRouter(table, func(ev *models.RouteEvent) {
		h.emit(event{route: ev})
	})
	h.sink = recording.NewSink(cfg.Project, store, func(s models.Status) {
		h.emit(event{status: s})
	})

	return h, nil
}

// Start connects the transport (if configured), subscribes every model
// tag, and launches the worker and dispatcher goroutines.
func (h *TelemetryHandler) Start() error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("handler already started")
	}
	h.started = true
	h.mu.Unlock()

	go h.dispatchLoop()
	go h.workerLoop()

	if h.cfg.MQTT.Broker == "" {
		log.Println("TelemetryHandler: no broker configured, running without transport")
		return nil
	}

	h.emit(event{status: models.StatusConnecting})

	client, err := mqttx.NewClient(h.cfg.MQTT, mqttx.Hooks{
		OnConnect:        h.onTransportConnect,
		OnConnectionLost: h.onTransportLost,
	})
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.client = client
	h.pub = mqttx.NewPublisher(client.GetNativeClient())
	h.subs = mqttx.NewSubscriptionManager(client.GetNativeClient(), h.Enqueue)
	h.mu.Unlock()

	// The first OnConnect hook may have fired before the subscription
	// manager existed; subscribe now that it does.
	h.ensureSubscriptions()

	return nil
}

// Stop shuts the handler down: transport first so no new messages arrive,
// then the worker and dispatcher with a bounded join. Idempotent.
func (h *TelemetryHandler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	started := h.started
	subs := h.subs
	client := h.client
	h.mu.Unlock()

	log.Println("TelemetryHandler: stopping...")

	if subs != nil {
		subs.UnsubscribeAll()
	}
	if client != nil {
		client.Close()
	}

	close(h.stop)
	if started {
		timeout := h.cfg.StopTimeout
		if timeout <= 0 {
			timeout = defaultStopTimeout
		}
		if !waitTimeout(h.workerDone, timeout) {
			log.Println("TelemetryHandler: worker did not stop in time")
		}
		if !waitTimeout(h.dispatchDone, timeout) {
			log.Println("TelemetryHandler: dispatcher did not stop in time")
		}
	}

	log.Println("TelemetryHandler: stopped")
}

// Enqueue pushes a raw transport message onto the frame queue. This is the
// path the MQTT callback uses; it never blocks.
func (h *TelemetryHandler) Enqueue(topic string, payload []byte) {
	h.queue.Push(&models.RawMessage{
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: time.Now(),
	})
}

// RegisterFeature routes frames of model to the named feature, filtered by
// selector (channel name, tacho label, or models.AllChannels). Executed on
// the worker as a queued command.
func (h *TelemetryHandler) RegisterFeature(feature, model, selector string) {
	h.command(func() {
		if err := h.router.Register(feature, model, selector); err != nil {
			log.Printf("TelemetryHandler: %v", err)
		}
	})
}

// UnregisterFeature removes a feature registration.
func (h *TelemetryHandler) UnregisterFeature(feature, model, selector string) {
	h.command(func() {
		h.router.Unregister(feature, model, selector)
	})
}

// StartSaving starts recording frames of model under filename.
func (h *TelemetryHandler) StartSaving(model, filename string) {
	h.command(func() {
		h.sink.StartSaving(model, filename)
	})
}

// StopSaving stops recording frames of model. No-op if not recording.
func (h *TelemetryHandler) StopSaving(model string) {
	h.command(func() {
		h.sink.StopSaving(model)
	})
}

// Publish sends a payload through the transport.
func (h *TelemetryHandler) Publish(topic string, payload []byte, qos byte, retain bool) error {
	h.mu.Lock()
	pub := h.pub
	h.mu.Unlock()
	if pub == nil {
		return errors.New("no transport configured")
	}
	return pub.Publish(topic, payload, qos, retain)
}

// command queues fn for execution on the worker goroutine. Commands are
// dropped (and logged) if the handler is shutting down and the worker no
// longer drains them.
func (h *TelemetryHandler) command(fn func()) {
	select {
	case h.commands <- fn:
	case <-h.stop:
		log.Println("TelemetryHandler: command dropped, handler stopped")
	}
}

// onTransportConnect fires on every (re)connect. The very first connect
// can fire before Start has built the subscription manager; Start covers
// that case by subscribing explicitly once the client is up.
func (h *TelemetryHandler) onTransportConnect() {
	h.emit(event{status: models.StatusConnected})
	h.ensureSubscriptions()
}

func (h *TelemetryHandler) onTransportLost(err error) {
	h.emit(event{status: models.StatusDisconnected})
	h.mu.Lock()
	subs := h.subs
	h.mu.Unlock()
	if subs != nil {
		subs.Clear()
	}
}

// ensureSubscriptions subscribes every known model tag.
func (h *TelemetryHandler) ensureSubscriptions() {
	h.mu.Lock()
	subs := h.subs
	h.mu.Unlock()
	if subs == nil {
		return
	}

	data, err := h.provider.GetProjectData(h.cfg.Project)
	if err != nil || data == nil {
		log.Printf("TelemetryHandler: cannot load project %q for subscribe: %v", h.cfg.Project, err)
		return
	}
	subs.SubscribeModels(data.Models)
}

// workerLoop is the single consumer of the frame queue: drain, coalesce,
// resolve, decode, demux, record, route.
func (h *TelemetryHandler) workerLoop() {
	defer close(h.workerDone)
	log.Println("FrameWorker: started")

	processed := 0
	dropped := 0
	lastSummary := time.Now()

	for {
		select {
		case <-h.stop:
			log.Printf("FrameWorker: stopped (processed=%d dropped=%d)", processed, dropped)
			return
		default:
		}

		h.drainCommands()

		msg, drainedCount := h.queue.Await(h.stop)
		if msg != nil {
			// Everything older than msg was coalesced away.
			dropped += drainedCount - 1
			if h.process(msg) {
				processed++
			} else {
				dropped++
			}
		}

		if time.Since(lastSummary) >= summaryLogInterval && (processed > 0 || dropped > 0) {
			log.Printf("FrameWorker: processed=%d dropped=%d interval=%s",
				processed, dropped, h.queue.BatchInterval())
			lastSummary = time.Now()
		}
	}
}

func (h *TelemetryHandler) drainCommands() {
	for {
		select {
		case fn := <-h.commands:
			fn()
		default:
			return
		}
	}
}

// process handles one raw message end to end. Returns false when the
// message was dropped; every failure here is recoverable and logged.
func (h *TelemetryHandler) process(msg *models.RawMessage) bool {
	res, ok := h.resolver.Resolve(msg.Topic)
	if !ok {
		log.Printf("FrameWorker: no model for topic %q, dropping", msg.Topic)
		return false
	}

	f, err := frame.Decode(msg.Payload)
	if err != nil {
		log.Printf("FrameWorker: decode failed for topic %q: %v", msg.Topic, err)
		return false
	}
	f.Topic = msg.Topic
	f.Model = res.Model.Name

	if f.GapVoltages != nil {
		h.emit(event{gaps: &models.GapReport{
			Model:  f.Model,
			Topic:  f.Topic,
			Values: f.GapVoltages,
		}})
	}
	if f.MeasuredDC != nil {
		h.emit(event{dc: f.MeasuredDC})
	}

	h.sink.Record(context.Background(), f)
	h.router.Route(f, res.Model)
	return true
}

// emit hands an event to the dispatcher without waiting. A full buffer
// drops the event; deliveries are at-most-latest, never replayed.
func (h *TelemetryHandler) emit(ev event) {
	select {
	case h.events <- ev:
	default:
		log.Println("TelemetryHandler: event buffer full, dropping event")
	}
}

// dispatchLoop delivers events to the consumer callbacks, isolating each
// delivery so one panicking consumer cannot break the others.
func (h *TelemetryHandler) dispatchLoop() {
	defer close(h.dispatchDone)
	for {
		select {
		case <-h.stop:
			return
		case ev := <-h.events:
			h.deliver(ev)
		}
	}
}

func (h *TelemetryHandler) deliver(ev event) {
	switch {
	case ev.route != nil:
		if h.callbacks.OnRoute != nil {
			safeInvoke("route", func() { h.callbacks.OnRoute(ev.route) })
		}
	case ev.gaps != nil:
		if h.callbacks.OnGapValues != nil {
			safeInvoke("gap-values", func() { h.callbacks.OnGapValues(ev.gaps) })
		}
	case ev.dc != nil:
		if h.callbacks.OnMeasuredDC != nil {
			safeInvoke("measured-dc", func() { h.callbacks.OnMeasuredDC(ev.dc) })
		}
	case ev.status != "":
		if h.callbacks.OnStatus != nil {
			safeInvoke("status", func() { h.callbacks.OnStatus(ev.status) })
		}
	}
}

func safeInvoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Dispatcher: %s consumer panicked: %v", name, r)
		}
	}()
	fn()
}

func waitTimeout(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
