package agenttest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/dispatch"
	"github.com/danmuck/objctl/internal/protocol/frame"
	"github.com/danmuck/objctl/internal/protocol/wire"
	"github.com/danmuck/objctl/internal/transport/mqtt"
	paho "github.com/eclipse/paho.mqtt.golang"
	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

// StartBroker runs an in-process broker on a free port and returns its URL.
func StartBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	broker := mqttserver.New(nil)
	require.NoError(t, broker.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})))
	go func() {
		if err := broker.Serve(); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("agenttest.StartBroker serve failed")
		}
	}()
	t.Cleanup(func() {
		if err := broker.Close(); err != nil {
			t.Logf("broker close: %v", err)
		}
	})

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond, "broker did not start")
	return "tcp://" + addr
}

// BrokerAgent serves modules over MQTT the way a real agent would.
type BrokerAgent struct {
	client  paho.Client
	agentID string

	mu      sync.Mutex
	modules map[string]Module
	seen    []wire.Execute

	// Scramble publishes output frames in reverse order, each twice.
	Scramble bool
}

// ServeBroker connects an agent to brokerURL and subscribes to its execute topic.
func ServeBroker(t *testing.T, brokerURL, agentID string) *BrokerAgent {
	t.Helper()
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("agent-" + agentID)
	client := paho.NewClient(opts)
	tok := client.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second), "agent connect timed out")
	require.NoError(t, tok.Error())

	a := &BrokerAgent{client: client, agentID: agentID, modules: make(map[string]Module)}
	sub := client.Subscribe(mqtt.ExecuteTopic(agentID), 1, a.onExecute)
	require.True(t, sub.WaitTimeout(5*time.Second), "agent subscribe timed out")
	require.NoError(t, sub.Error())
	t.Cleanup(func() {
		client.Disconnect(100)
	})
	return a
}

func (a *BrokerAgent) Load(id string, m Module) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modules[id] = m
}

// Seen returns the execute frames received so far.
func (a *BrokerAgent) Seen() []wire.Execute {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]wire.Execute, len(a.seen))
	copy(out, a.seen)
	return out
}

func (a *BrokerAgent) onExecute(_ paho.Client, msg paho.Message) {
	fr, err := frame.Unmarshal(msg.Payload())
	if err != nil {
		return
	}
	exec, err := wire.DecodeExecute(fr)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.seen = append(a.seen, exec)
	mod, ok := a.modules[exec.ModuleID]
	a.mu.Unlock()

	// Handlers must not block the client's router.
	go a.run(exec, mod, ok)
}

func (a *BrokerAgent) run(exec wire.Execute, mod Module, loaded bool) {
	stream := mqtt.StreamTopic(exec.ExecutionID)
	var (
		msgID   uint64
		seq     uint64
		pending [][]byte
	)
	publish := func(b []byte) bool {
		tok := a.client.Publish(stream, 1, false, b)
		return tok.WaitTimeout(5*time.Second) && tok.Error() == nil
	}
	send := func(sig dispatch.Signal) bool {
		msgID++
		var (
			b   []byte
			err error
		)
		switch sig.Kind {
		case dispatch.SignalOutput:
			seq++
			b, err = wire.EncodeOutput(msgID, wire.Output{ExecutionID: exec.ExecutionID, Seq: seq, Text: sig.Text})
			if err == nil && a.Scramble {
				pending = append(pending, b)
				return true
			}
		case dispatch.SignalComplete:
			b, err = wire.EncodeComplete(msgID, wire.Complete{ExecutionID: exec.ExecutionID, Fragments: seq})
		case dispatch.SignalFailure:
			b, err = wire.EncodeFailure(msgID, wire.Failure{ExecutionID: exec.ExecutionID, Code: sig.Code, Reason: sig.Reason})
		default:
			err = fmt.Errorf("unknown signal %s", sig.Kind)
		}
		if err != nil {
			return false
		}
		for i := len(pending) - 1; i >= 0; i-- {
			publish(pending[i])
			publish(pending[i])
		}
		pending = nil
		return publish(b)
	}

	if !loaded {
		send(dispatch.Failure(dispatch.FailureModuleLoad, fmt.Sprintf("%s/%s: object module not found", exec.BinaryDir, exec.BinaryName)))
		return
	}
	Run(context.Background(), mod, args.LengthUnits, exec.Arguments, send)
}
