package mqtt

import (
	"log"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"vibration-backend/internal/models"
)

// SubscriptionManager subscribes the tag topics of a project's models and
// tracks the subscribed set across reconnects. The message handler only
// enqueues raw payloads; all decoding happens on the frame worker, never
// in the transport callback.
type SubscriptionManager struct {
	client  mqtt.Client
	enqueue func(topic string, payload []byte)

	mu         sync.Mutex
	subscribed map[string]struct{} // tag topics
}

// NewSubscriptionManager creates a subscription manager that forwards
// every inbound message to enqueue.
func NewSubscriptionManager(client mqtt.Client, enqueue func(topic string, payload []byte)) *SubscriptionManager {
	return &SubscriptionManager{
		client:     client,
		enqueue:    enqueue,
		subscribed: make(map[string]struct{}),
	}
}

// SubscribeModels subscribes the tag topic of every model that has one and
// is not subscribed yet. Already-subscribed topics are skipped, so calling
// this from every reconnect never double-subscribes.
func (sm *SubscriptionManager) SubscribeModels(projectModels []models.Model) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, m := range projectModels {
		if m.TagName == "" {
			continue
		}
		if _, ok := sm.subscribed[m.TagName]; ok {
			continue
		}
		token := sm.client.Subscribe(m.TagName, 0, sm.handleMessage)
		if token.Wait() && token.Error() != nil {
			log.Printf("SubscriptionManager: failed to subscribe %q: %v", m.TagName, token.Error())
			continue
		}
		sm.subscribed[m.TagName] = struct{}{}
		log.Printf("SubscriptionManager: subscribed to %q (model %q)", m.TagName, m.Name)
	}
}

// Clear forgets the subscribed set without talking to the broker. Called
// on connection loss so the next connect re-subscribes everything.
func (sm *SubscriptionManager) Clear() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.subscribed = make(map[string]struct{})
}

// UnsubscribeAll unsubscribes every tracked topic and clears the set.
// Used on shutdown while the connection is still up.
func (sm *SubscriptionManager) UnsubscribeAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for topic := range sm.subscribed {
		token := sm.client.Unsubscribe(topic)
		if token.Wait() && token.Error() != nil {
			log.Printf("SubscriptionManager: failed to unsubscribe %q: %v", topic, token.Error())
		}
	}
	sm.subscribed = make(map[string]struct{})
}

// handleMessage runs on the paho callback goroutine. It must never block
// or decode; it hands the raw payload straight to the frame queue.
func (sm *SubscriptionManager) handleMessage(client mqtt.Client, msg mqtt.Message) {
	sm.enqueue(msg.Topic(), msg.Payload())
}
