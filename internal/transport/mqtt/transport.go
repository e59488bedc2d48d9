// Package mqtt reaches an agent through an MQTT broker. It implements
// dispatch.Transport and is only wired by the CLI.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/protocol/frame"
	"github.com/danmuck/objctl/internal/protocol/schema"
	"github.com/danmuck/objctl/internal/protocol/wire"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnect = errors.New("mqtt: connect failed")
	ErrTimeout = errors.New("mqtt: broker operation timed out")
)

var newClient = paho.NewClient

// Transport publishes execute frames to one agent and turns its stream
// frames back into dispatch signals.
type Transport struct {
	cfg    Config
	client paho.Client
	nextID atomic.Uint64
}

// Dial connects to the broker, retrying with backoff up to
// cfg.MaxConnectAttempts.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "objctl-" + uuid.NewString()
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt.Transport connection lost")
		})
	client := newClient(opts)

	attempts := max(cfg.MaxConnectAttempts, 1)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = waitToken(ctx, client.Connect(), cfg.ConnectTimeout)
		if lastErr == nil {
			log.Info().
				Str("broker", cfg.Broker).
				Str("client_id", clientID).
				Str("agent_id", cfg.AgentID).
				Int("attempt", attempt).
				Msg("mqtt.Dial connected")
			return &Transport{cfg: cfg, client: client}, nil
		}
		if attempt == attempts {
			break
		}
		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		log.Warn().
			Err(lastErr).
			Str("broker", cfg.Broker).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("mqtt.Dial retry")
		select {
		case <-ctx.Done():
			client.Disconnect(0)
			return nil, fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
		case <-time.After(delay):
		}
	}
	// A connect token abandoned on timeout may still succeed later.
	client.Disconnect(0)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnect, cfg.Broker, attempts, lastErr)
}

// Close disconnects, allowing 250ms for in-flight work.
func (t *Transport) Close() {
	t.client.Disconnect(250)
}

// Submit subscribes to the execution's stream topic before publishing the
// execute frame so no early output is missed.
func (t *Transport) Submit(ctx context.Context, req dispatch.ExecutionRequest) (<-chan dispatch.Signal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload, err := wire.EncodeExecute(t.nextID.Add(1), wire.Execute{
		ExecutionID: req.ExecutionID,
		ModuleID:    req.ModuleID,
		BinaryName:  req.BinaryName,
		BinaryDir:   req.BinaryDir,
		Arguments:   req.Arguments,
	})
	if err != nil {
		return nil, err
	}

	stream := StreamTopic(req.ExecutionID)
	seq := newSequencer()
	handler := func(_ paho.Client, msg paho.Message) {
		t.route(req.ExecutionID, seq, msg.Payload())
	}
	if err := waitToken(ctx, t.client.Subscribe(stream, t.cfg.QoS, handler), t.cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt: subscribe %s: %w", stream, err)
	}
	topic := ExecuteTopic(t.cfg.AgentID)
	if err := waitToken(ctx, t.client.Publish(topic, t.cfg.QoS, false, payload), t.cfg.ConnectTimeout); err != nil {
		t.unsubscribe(stream)
		return nil, fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	log.Debug().
		Str("topic", topic).
		Str("execution_id", req.ExecutionID).
		Str("module", req.ModuleID).
		Int("bytes", len(payload)).
		Msg("mqtt.Transport.Submit published")

	out := make(chan dispatch.Signal)
	go t.forward(ctx, stream, seq, out)
	return out, nil
}

func (t *Transport) route(executionID string, seq *sequencer, payload []byte) {
	fr, err := frame.Unmarshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("execution_id", executionID).Msg("mqtt.Transport dropping malformed frame")
		return
	}
	switch fr.Header.MessageType {
	case schema.MsgOutput:
		o, err := wire.DecodeOutput(fr)
		if err != nil || o.ExecutionID != executionID {
			log.Warn().Err(err).Str("execution_id", executionID).Msg("mqtt.Transport dropping output frame")
			return
		}
		seq.output(o)
	case schema.MsgComplete:
		c, err := wire.DecodeComplete(fr)
		if err != nil || c.ExecutionID != executionID {
			log.Warn().Err(err).Str("execution_id", executionID).Msg("mqtt.Transport dropping complete frame")
			return
		}
		seq.complete(c)
	case schema.MsgError:
		f, err := wire.DecodeFailure(fr)
		if err != nil || f.ExecutionID != executionID {
			log.Warn().Err(err).Str("execution_id", executionID).Msg("mqtt.Transport dropping error frame")
			return
		}
		seq.failure(f)
	default:
		log.Warn().
			Str("execution_id", executionID).
			Str("message", schema.Name(fr.Header.MessageType)).
			Msg("mqtt.Transport unexpected frame on stream")
	}
}

func (t *Transport) forward(ctx context.Context, stream string, seq *sequencer, out chan<- dispatch.Signal) {
	defer close(out)
	defer t.unsubscribe(stream)
	for {
		for _, sig := range seq.take() {
			select {
			case out <- sig:
			case <-ctx.Done():
				return
			}
			if sig.Kind != dispatch.SignalOutput {
				if n := seq.droppedCount(); n > 0 {
					log.Debug().Str("topic", stream).Int("dropped", n).Msg("mqtt.Transport dropped redelivered frames")
				}
				return
			}
		}
		select {
		case <-seq.notify:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) unsubscribe(topic string) {
	tok := t.client.Unsubscribe(topic)
	if !tok.WaitTimeout(t.cfg.ConnectTimeout) {
		log.Warn().Str("topic", topic).Msg("mqtt.Transport unsubscribe timed out")
		return
	}
	if err := tok.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("mqtt.Transport unsubscribe failed")
	}
}

func waitToken(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConfig().ConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
