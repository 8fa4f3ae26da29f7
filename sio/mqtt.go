/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Comcast/experiences/util"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// MQTTConf configures MQTTCouplings.  The names follow mosquitto_sub
// where possible.
type MQTTConf struct {
	Broker    string        `yaml:"broker" json:"broker" validate:"required"`
	ClientId  string        `yaml:"clientId" json:"clientId"`
	Username  string        `yaml:"username" json:"username"`
	Password  string        `yaml:"password" json:"password"`
	KeepAlive time.Duration `yaml:"keepAlive" json:"keepAlive"`
	Reconnect bool          `yaml:"reconnect" json:"reconnect"`

	CertFile string `yaml:"cert" json:"cert"`
	KeyFile  string `yaml:"key" json:"key"`
	CAFile   string `yaml:"cafile" json:"cafile"`
	Insecure bool   `yaml:"insecure" json:"insecure"`

	// Topic receives renders.  A suffix ":QOS" sets the QoS.
	Topic string `yaml:"topic" json:"topic" validate:"required"`

	// CommandTopic, if not empty, is subscribed for Commands.
	CommandTopic string `yaml:"commandTopic" json:"commandTopic"`

	Retain bool `yaml:"retain" json:"retain"`

	// Quiesce is the disconnection quiescence in milliseconds.
	Quiesce uint `yaml:"quiesce" json:"quiesce"`
}

// MQTTClientOptions makes Paho options from the configuration.
func MQTTClientOptions(conf *MQTTConf, logger *zap.Logger) (*mqtt.ClientOptions, error) {
	logger = util.OrNop(logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientId)
	keepAlive := conf.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 600 * time.Second
	}
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.Username = conf.Username
	opts.Password = conf.Password
	opts.AutoReconnect = conf.Reconnect
	opts.CleanSession = true

	tlsConf := &tls.Config{
		InsecureSkipVerify: conf.Insecure,
	}
	if conf.CAFile != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(conf.CAFile)
		if err != nil {
			return nil, fmt.Errorf("couldn't read '%s': %w", conf.CAFile, err)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			logger.Warn("no certs appended, using system certs only", zap.String("cafile", conf.CAFile))
		}
		tlsConf.RootCAs = rootCAs
	}
	if conf.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(conf.CertFile, conf.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsConf.Certificates = []tls.Certificate{cert}
	}
	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	return opts, nil
}

// MQTTCouplings publishes renders to an MQTT broker and can receive
// Commands from a topic.
type MQTTCouplings struct {
	Client mqtt.Client

	Topic  string
	QoS    byte
	Retain bool

	CommandTopic string
	CommandQoS   byte

	Quiesce uint

	// InTimeout limits how long an incoming command waits to be
	// queued.
	InTimeout time.Duration

	Logger *zap.Logger

	commands chan *Command
}

// NewMQTTCouplings makes couplings with a new Paho client.
func NewMQTTCouplings(conf *MQTTConf, logger *zap.Logger) (*MQTTCouplings, error) {
	opts, err := MQTTClientOptions(conf, logger)
	if err != nil {
		return nil, err
	}
	c := NewMQTTCouplingsWithClient(mqtt.NewClient(opts), conf, logger)
	return c, nil
}

// NewMQTTCouplingsWithClient makes couplings that use the given
// client.
func NewMQTTCouplingsWithClient(client mqtt.Client, conf *MQTTConf, logger *zap.Logger) *MQTTCouplings {
	topic, qos := parseTopic(conf.Topic)
	cmdTopic, cmdQoS := parseTopic(conf.CommandTopic)
	quiesce := conf.Quiesce
	if quiesce == 0 {
		quiesce = 100
	}
	return &MQTTCouplings{
		Client:       client,
		Topic:        topic,
		QoS:          qos,
		Retain:       conf.Retain,
		CommandTopic: cmdTopic,
		CommandQoS:   cmdQoS,
		Quiesce:      quiesce,
		InTimeout:    5 * time.Second,
		Logger:       util.OrNop(logger),
		commands:     make(chan *Command),
	}
}

// Start connects to the broker and subscribes to the command topic.
func (c *MQTTCouplings) Start(ctx context.Context) error {
	c.Logger.Debug("connecting to broker")
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.Logger.Debug("connected to broker")

	if c.CommandTopic == "" {
		return nil
	}
	handler := func(client mqtt.Client, msg mqtt.Message) {
		c.consume(ctx, msg.Topic(), msg.Payload())
	}
	if t := c.Client.Subscribe(c.CommandTopic, c.CommandQoS, handler); t.Wait() && t.Error() != nil {
		return t.Error()
	}
	c.Logger.Debug("subscribed", zap.String("topic", c.CommandTopic))
	return nil
}

func (c *MQTTCouplings) consume(ctx context.Context, topic string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		c.Logger.Warn("bad command", zap.String("topic", topic), zap.ByteString("payload", payload), zap.Error(err))
		return
	}

	to := time.NewTimer(c.InTimeout)
	defer to.Stop()

	select {
	case <-ctx.Done():
	case c.commands <- &cmd:
	case <-to.C:
		c.Logger.Warn("command stalled", zap.String("topic", topic), zap.ByteString("payload", payload))
	}
}

// Commands returns the commands received on the command topic.
func (c *MQTTCouplings) Commands(ctx context.Context) (<-chan *Command, error) {
	return c.commands, nil
}

// Publish publishes the render as JSON.
func (c *MQTTCouplings) Publish(ctx context.Context, r *Render) error {
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := c.Client.Publish(c.Topic, c.QoS, c.Retain, js)
	token.Wait()
	return token.Error()
}

// Stop terminates the MQTT session.
func (c *MQTTCouplings) Stop(context.Context) error {
	c.Logger.Debug("disconnecting")
	c.Client.Disconnect(c.Quiesce)
	return nil
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 8)
	if err != nil || 2 < n {
		return s, 0
	}
	return s[:i], byte(n)
}
