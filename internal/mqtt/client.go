package mqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Client manages the MQTT connection (low-level connection management only)
// For subscribing and publishing, use SubscriptionManager and Publisher
type Client struct {
	client mqtt.Client
	config ClientConfig
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Hooks receive connectivity transitions from the paho client. OnConnect
// fires on the initial connect and on every automatic reconnect, so it is
// the place to re-subscribe; OnConnectionLost fires on every drop.
// Reconnection timing itself is left to paho's retry machinery.
type Hooks struct {
	OnConnect        func()
	OnConnectionLost func(error)
}

// NewClient creates a new MQTT client connection. The client ID gets a
// random suffix so two dashboard instances never steal each other's broker
// session.
func NewClient(config ClientConfig, hooks Hooks) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", config.ClientID, uuid.NewString()[:8]))
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Println("MQTT: Connection established")
		if hooks.OnConnect != nil {
			hooks.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
		if hooks.OnConnectionLost != nil {
			hooks.OnConnectionLost(err)
		}
	})

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("MQTT Client: Connected to broker:", config.Broker)

	return &Client{
		client: client,
		config: config,
	}, nil
}

// GetNativeClient returns the underlying paho MQTT client
// This is used by SubscriptionManager and Publisher
func (c *Client) GetNativeClient() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close closes the MQTT client connection
func (c *Client) Close() {
	c.client.Disconnect(250)
	log.Println("MQTT Client: Disconnected")
}
