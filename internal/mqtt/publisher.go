package mqtt

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes raw payloads on behalf of the dashboard (model
// control commands, simulator feeds).
type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends payload to topic with the given QoS and retain flag.
func (p *Publisher) Publish(topic string, payload []byte, qos byte, retain bool) error {
	token := p.client.Publish(topic, qos, retain, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %q: %w", topic, token.Error())
	}
	return nil
}
