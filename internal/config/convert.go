package config

import (
	"github.com/danmuck/objctl/internal/args"
	"github.com/danmuck/objctl/internal/logging"
	"github.com/danmuck/objctl/internal/tasks/curl"
	"github.com/danmuck/objctl/internal/transport/mqtt"
)

func (c Config) MQTT() mqtt.Config {
	out := mqtt.DefaultConfig()
	out.Broker = c.Agent.Broker
	out.AgentID = c.Agent.AgentID
	out.ClientID = c.Agent.ClientID
	out.QoS = c.Agent.QoS
	out.ConnectTimeout = c.Agent.ConnectTimeout
	out.MaxConnectAttempts = c.Agent.MaxConnectAttempts
	return out
}

func (c Config) LogOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

func (c Config) Encoder() args.Encoder {
	return args.Encoder{WideLength: c.Encoding.WideLength}
}

func (c Config) CurlOptions() curl.Options {
	return curl.Options{UserAgent: c.Curl.UserAgent, BinaryDir: c.Modules.Dir}
}
