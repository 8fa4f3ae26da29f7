package sio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	json "github.com/goccy/go-json"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want string
		err  bool
	}{
		{"", "null", false},
		{"  # comment", "null", false},
		{"navigate t", `{"navigate":"t"}`, false},
		{"go t", `{"navigate":"t"}`, false},
		{"refresh\n", `{"refresh":true}`, false},
		{"quit", `{"quit":true}`, false},
		{`{"navigate":"t","refresh":true}`, `{"navigate":"t","refresh":true}`, false},
		{"navigate", "", true},
		{"dance", "", true},
		{`{"navigate":`, "", true},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			cmd, err := ParseCommand(test.line)
			if test.err {
				if err == nil {
					t.Fatal(JS(cmd))
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cmd == nil {
				if test.want != "null" {
					t.Fatal("nil")
				}
				return
			}
			if got := JS(cmd); got != test.want {
				t.Fatal(got)
			}
		})
	}
}

func TestStdioCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Stdio{
		In: strings.NewReader("# hi\nnav t\nrefresh"),
	}
	cmds, err := s.Commands(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for cmd := range cmds {
		got = append(got, JS(cmd))
	}
	want := []string{`{"navigate":"t"}`, `{"refresh":true}`, `{"quit":true}`}
	if JS(got) != JS(want) {
		t.Fatal(got)
	}
	s.WG.Wait()
}

func TestStdioPublishAndSnapshot(t *testing.T) {
	var buf bytes.Buffer
	s := &Stdio{
		Out:              &buf,
		Tags:             true,
		SnapshotFilename: filepath.Join(t.TempDir(), "last.json"),
	}
	ctx := context.Background()
	for i := uint64(1); i <= 2; i++ {
		if err := s.Publish(ctx, &Render{Screen: "s", Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "render {") {
		t.Fatal(buf.String())
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	bs, err := os.ReadFile(s.SnapshotFilename)
	if err != nil {
		t.Fatal(err)
	}
	var r Render
	if err = json.Unmarshal(bs, &r); err != nil {
		t.Fatal(err)
	}
	if r.Seq != 2 {
		t.Fatal(r.Seq)
	}
}

// recorder is a Couplings and Commander for testing Pump.
type recorder struct {
	sync.Mutex
	renders []*Render
	started bool
	stopped bool
	cmds    chan *Command

	startErr error
	cmdsErr  error
}

func (c *recorder) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.Lock()
	c.started = true
	c.Unlock()
	return nil
}

func (c *recorder) Publish(ctx context.Context, r *Render) error {
	c.Lock()
	c.renders = append(c.renders, r)
	c.Unlock()
	return nil
}

func (c *recorder) Stop(context.Context) error {
	c.Lock()
	c.stopped = true
	c.Unlock()
	return nil
}

func (c *recorder) Commands(context.Context) (<-chan *Command, error) {
	if c.cmdsErr != nil {
		return nil, c.cmdsErr
	}
	return c.cmds, nil
}

func TestPumpFailuresStopCouplings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession(sessionDoc(t), nil, newFakeFetcher(), nil)
	defer s.Close()

	broken := errors.New("broken")

	ok := &recorder{cmds: make(chan *Command)}
	bad := &recorder{startErr: broken}
	if err := Pump(ctx, s, nil, ok, bad); err != broken {
		t.Fatal(err)
	}
	if !ok.stopped {
		t.Fatal("started coupling not stopped")
	}
	if bad.stopped {
		t.Fatal("unstarted coupling stopped")
	}

	ok = &recorder{cmds: make(chan *Command)}
	bad = &recorder{cmdsErr: broken}
	if err := Pump(ctx, s, nil, ok, bad); err != broken {
		t.Fatal(err)
	}
	if !ok.stopped || !bad.stopped {
		t.Fatal(ok.stopped, bad.stopped)
	}
}

func TestPump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSession(sessionDoc(t), nil, newFakeFetcher(), nil)
	go s.Loop(ctx)

	c := &recorder{
		cmds: make(chan *Command, 1),
	}
	c.cmds <- &Command{Navigate: "t"}

	done := make(chan error)
	go func() {
		done <- Pump(ctx, s, nil, c)
	}()

	navigated := func() bool {
		c.Lock()
		defer c.Unlock()
		for _, r := range c.renders {
			if r.Screen == "t" {
				return true
			}
		}
		return false
	}
	deadline := time.Now().Add(5 * time.Second)
	for !navigated() {
		if time.Now().After(deadline) {
			t.Fatal("no render for t")
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.cmds <- &Command{Quit: true}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}

	c.Lock()
	defer c.Unlock()
	if !c.started || !c.stopped {
		t.Fatal(c.started, c.stopped)
	}
	if len(c.renders) == 0 || c.renders[0].Screen != "s" {
		t.Fatal(JS(c.renders))
	}
}

// fakeToken completes immediately.
type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool {
	return true
}

func (t *fakeToken) WaitTimeout(time.Duration) bool {
	return true
}

func (t *fakeToken) Error() error {
	return t.err
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string {
	return m.topic
}

func (m *fakeMessage) Payload() []byte {
	return m.payload
}

// fakeMQTT records what's published.
type fakeMQTT struct {
	mqtt.Client

	sync.Mutex
	connected    bool
	disconnected bool
	published    map[string][][]byte
	handlers     map[string]mqtt.MessageHandler
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		published: make(map[string][][]byte),
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (c *fakeMQTT) Connect() mqtt.Token {
	c.Lock()
	c.connected = true
	c.Unlock()
	return &fakeToken{}
}

func (c *fakeMQTT) Disconnect(quiesce uint) {
	c.Lock()
	c.disconnected = true
	c.Unlock()
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.Lock()
	c.published[topic] = append(c.published[topic], payload.([]byte))
	c.Unlock()
	return &fakeToken{}
}

func (c *fakeMQTT) Subscribe(topic string, qos byte, h mqtt.MessageHandler) mqtt.Token {
	c.Lock()
	c.handlers[topic] = h
	c.Unlock()
	return &fakeToken{}
}

func (c *fakeMQTT) deliver(topic string, payload string) {
	c.Lock()
	h := c.handlers[topic]
	c.Unlock()
	h(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func TestParseTopic(t *testing.T) {
	for s, want := range map[string]string{
		"renders":         `["renders",0]`,
		"renders:1":       `["renders",1]`,
		"a/b:2":           `["a/b",2]`,
		"renders:7":       `["renders:7",0]`,
		"tcp://x:1883/yz": `["tcp://x:1883/yz",0]`,
	} {
		topic, qos := parseTopic(s)
		if got := JS([]interface{}{topic, qos}); got != want {
			t.Fatal(s, got)
		}
	}
}

func TestMQTTCouplings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newFakeMQTT()
	c := NewMQTTCouplingsWithClient(client, &MQTTConf{
		Broker:       "tcp://localhost:1883",
		Topic:        "xp/renders:1",
		CommandTopic: "xp/commands",
	}, nil)
	if c.Topic != "xp/renders" || c.QoS != 1 {
		t.Fatal(c.Topic, c.QoS)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Publish(ctx, &Render{Screen: "s", Seq: 1}); err != nil {
		t.Fatal(err)
	}

	cmds, err := c.Commands(ctx)
	if err != nil {
		t.Fatal(err)
	}
	go client.deliver("xp/commands", `{"navigate":"t"}`)
	select {
	case cmd := <-cmds:
		if cmd.Navigate != "t" {
			t.Fatal(JS(cmd))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	client.Lock()
	defer client.Unlock()
	if !client.connected || !client.disconnected {
		t.Fatal(client.connected, client.disconnected)
	}
	msgs := client.published["xp/renders"]
	if len(msgs) != 1 {
		t.Fatal(len(msgs))
	}
	var r Render
	if err := json.Unmarshal(msgs[0], &r); err != nil || r.Screen != "s" {
		t.Fatal(err, string(msgs[0]))
	}
}
