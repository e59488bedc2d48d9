package mqtt

import (
	"fmt"
	"strings"
	"time"
)

// BackoffConfig defines connect retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines broker connection and agent addressing.
type Config struct {
	Broker             string
	AgentID            string
	ClientID           string
	QoS                byte
	ConnectTimeout     time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Broker:             "tcp://127.0.0.1:1883",
		QoS:                1,
		ConnectTimeout:     5 * time.Second,
		MaxConnectAttempts: 5,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Broker) == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if strings.TrimSpace(c.AgentID) == "" {
		return fmt.Errorf("mqtt: agent_id is required")
	}
	if strings.ContainsAny(c.AgentID, "/+#") {
		return fmt.Errorf("mqtt: agent_id %q contains topic separators or wildcards", c.AgentID)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// ExecuteTopic is where an agent receives execute frames.
func ExecuteTopic(agentID string) string {
	return "objctl/agents/" + agentID + "/execute"
}

// StreamTopic carries output, complete and error frames for one execution.
func StreamTopic(executionID string) string {
	return "objctl/exec/" + executionID + "/stream"
}
