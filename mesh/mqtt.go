package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// StateHandler is called when a tool reports a new state, e.g. "pivoting" or "idle"
type StateHandler func(toolID string, state string)

// FrameHandler is called when a tracker frame message is received
// Parameters: toolID, decoded frame, error
type FrameHandler func(toolID string, frame TrackerFrame, err error)

// MQTTClient manages MQTT connection and subscriptions for tracker frames
type MQTTClient struct {
	client       mqtt.Client
	config       *Config
	frameHandler FrameHandler
	stateHandler StateHandler
	isConnected  bool
	mu           sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration
// If neither MQTT_BROKER nor mqtt.broker is set, MQTT is disabled and this returns nil
func InitMQTT(config *Config, handler FrameHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	// Check if MQTT is enabled via env var or config
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: mqtt.broker is required")
		return nil, nil
	}

	if config == nil || len(config.Tools) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no tool configuration provided")
	}

	client := &MQTTClient{
		config:       config,
		frameHandler: handler,
	}

	// Build MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	// Client ID
	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "stylus"
	}
	opts.SetClientID(clientID)

	// Authentication
	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false) // Frames are independent

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the frame and state topic of every tool
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to tool topics...")
	c.setConnected(true)

	for _, tool := range c.config.Tools {
		if tool.Topic == "" {
			log.Printf("Warning: tool %s has no topic configured", tool.ID)
			continue
		}

		log.Printf("Subscribing to %s for tool %s", tool.Topic, tool.ID)
		token := client.Subscribe(tool.Topic, 0, c.createMessageHandler(tool.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", tool.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", tool.Topic)
		}

		if stateTopic, ok := deriveStateTopic(tool.Topic); ok {
			log.Printf("Subscribing to %s for tool %s state", stateTopic, tool.ID)
			stateToken := client.Subscribe(stateTopic, 0, c.createStateMessageHandler(tool.ID))

			if stateToken.WaitTimeout(5*time.Second) && stateToken.Error() != nil {
				log.Printf("Error subscribing to %s: %v", stateTopic, stateToken.Error())
			} else {
				log.Printf("Successfully subscribed to %s", stateTopic)
			}
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createMessageHandler creates a handler function for a specific tool's frame topic
func (c *MQTTClient) createMessageHandler(toolID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		frame, err := DecodeTrackerFrame(payload)
		if err != nil {
			log.Printf("Error decoding tracker frame for %s (topic: %s): %v", toolID, msg.Topic(), err)
		}
		if c.frameHandler != nil {
			c.frameHandler(toolID, frame, err)
		}
	}
}

// SetStateHandler registers a callback that is invoked on every tool state message
func (c *MQTTClient) SetStateHandler(handler StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandler = handler
}

// getStateHandler returns the current state handler in a thread-safe manner
func (c *MQTTClient) getStateHandler() StateHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateHandler
}

// deriveStateTopic converts a frame topic to its state topic.
// Example: "tracker/pointer/frames" -> "tracker/pointer/state"
// Returns the derived topic and true if the conversion succeeded, or empty string and false otherwise.
func deriveStateTopic(frameTopic string) (string, bool) {
	parts := strings.Split(frameTopic, "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return "", false
	}
	if parts[len(parts)-1] == "state" {
		return "", false
	}
	parts[len(parts)-1] = "state"
	return strings.Join(parts, "/"), true
}

// statePayload represents the JSON structure of a tool state message
type statePayload struct {
	Value string `json:"value"`
}

// parseStatePayload accepts {"value": "..."}, a JSON string or a raw string.
func parseStatePayload(payload []byte) string {
	var state statePayload
	if err := json.Unmarshal(payload, &state); err == nil {
		return strings.TrimSpace(state.Value)
	}
	var plainStr string
	if err := json.Unmarshal(payload, &plainStr); err == nil {
		return strings.TrimSpace(plainStr)
	}
	return strings.TrimSpace(string(payload))
}

// createStateMessageHandler creates a handler for state topic messages
func (c *MQTTClient) createStateMessageHandler(toolID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		stateValue := parseStatePayload(msg.Payload())
		if stateValue == "" {
			log.Printf("Empty state payload for %s, skipping", toolID)
			return
		}

		log.Printf("Tool %s state: %s", toolID, stateValue)

		if handler := c.getStateHandler(); handler != nil {
			handler(toolID, stateValue)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetToolByTopic returns the tool ID for a given frame topic
func (c *MQTTClient) GetToolByTopic(topic string) (string, bool) {
	for _, tool := range c.config.Tools {
		if tool.Topic == topic {
			return tool.ID, true
		}
	}
	return "", false
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler FrameHandler) *MQTTClient {
	return &MQTTClient{
		client:       client,
		config:       config,
		frameHandler: handler,
	}
}
