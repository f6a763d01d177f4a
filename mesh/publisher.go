package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ToolResult is the published form of a NavResult
type ToolResult struct {
	ToolID    string  `json:"toolId"`
	Frame     int     `json:"frame"`
	Sample    Vec3    `json:"sample"`
	Closest   Vec3    `json:"closest"`
	Distance  float64 `json:"distance"`
	Triangle  int     `json:"triangle"`
	Timestamp int64   `json:"timestamp"`
}

// NewToolResult stamps a NavResult for publishing
func NewToolResult(toolID string, res NavResult) *ToolResult {
	return &ToolResult{
		ToolID:    toolID,
		Frame:     res.Frame,
		Sample:    ToVec3(res.Sample),
		Closest:   ToVec3(res.Closest),
		Distance:  res.Distance,
		Triangle:  res.Triangle,
		Timestamp: time.Now().Unix(),
	}
}

// Publisher manages publishing navigation results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	results       map[string]*ToolResult
	mu            sync.RWMutex
}

// NewPublisher creates a new result publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "stylus"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // QoS 0 for per-frame results (fire and forget)
		retain:        true, // Retain for latest result
		results:       make(map[string]*ToolResult),
	}
}

// Prefix returns the topic prefix results are published under
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// SetPrefix overrides the topic prefix
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// PublishResult publishes a tool's navigation result to MQTT
// Publishes to both individual topic and combined results topic
func (p *Publisher) PublishResult(toolID string, res NavResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	result := NewToolResult(toolID, res)

	p.mu.Lock()
	p.results[toolID] = result
	p.mu.Unlock()

	// Publish to individual topic: stylus/{toolID}
	if err := p.publishJSON(fmt.Sprintf("%s/%s", p.publishPrefix, toolID), result); err != nil {
		log.Printf("Error publishing result for %s: %v", toolID, err)
		return err
	}

	// Publish to combined topic: stylus/results
	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing combined results: %v", err)
		return err
	}

	return nil
}

// PublishCalibration publishes a tool's pivot calibration to stylus/{toolID}/calibration
func (p *Publisher) PublishCalibration(toolID string, cal ToolCalibration) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	topic := fmt.Sprintf("%s/%s/calibration", p.publishPrefix, toolID)
	if err := p.publishJSON(topic, cal); err != nil {
		return err
	}
	log.Printf("Published calibration for %s: tip=(%.2f, %.2f, %.2f) rms=%.3f",
		toolID, cal.Tip[0], cal.Tip[1], cal.Tip[2], cal.RMS)
	return nil
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// publishCombined publishes the latest result of every tool to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	results := make([]*ToolResult, 0, len(p.results))
	for _, r := range p.results {
		results = append(results, r)
	}
	p.mu.RUnlock()

	if len(results) == 0 {
		return nil
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ToolID < results[j].ToolID })

	message := map[string]interface{}{
		"tools":     results,
		"timestamp": time.Now().Unix(),
	}
	return p.publishJSON(fmt.Sprintf("%s/results", p.publishPrefix), message)
}

// GetResult returns the last published result for a tool
func (p *Publisher) GetResult(toolID string) (*ToolResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[toolID]
	if !ok {
		return nil, false
	}
	rCopy := *r
	return &rCopy, true
}

// GetAllResults returns all known tool results
func (p *Publisher) GetAllResults() map[string]*ToolResult {
	p.mu.RLock()
	defer p.mu.RUnlock()

	results := make(map[string]*ToolResult, len(p.results))
	for id, r := range p.results {
		rCopy := *r
		results[id] = &rCopy
	}
	return results
}

// ClearResult removes a tool's result (e.g., when it goes offline)
func (p *Publisher) ClearResult(toolID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.results, toolID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
