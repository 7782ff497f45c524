package mqtt311

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findAvailablePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

// credentialsHook accepts only the given username.
type credentialsHook struct {
	mqtt.HookBase
	username string
}

func (h *credentialsHook) ID() string { return "credentials" }

func (h *credentialsHook) Provides(b byte) bool {
	return b == mqtt.OnConnectAuthenticate || b == mqtt.OnACLCheck
}

func (h *credentialsHook) OnConnectAuthenticate(_ *mqtt.Client, pk packets.Packet) bool {
	return string(pk.Connect.Username) == h.username
}

func (h *credentialsHook) OnACLCheck(_ *mqtt.Client, _ string, _ bool) bool { return true }

// testBroker is an in-process broker that may be closed more than once.
type testBroker struct {
	*mqtt.Server
	once sync.Once
}

func (b *testBroker) Close() error {
	var err error
	b.once.Do(func() { err = b.Server.Close() })
	return err
}

// startBroker runs an in-process broker with the given listener. A nil hook
// allows every client.
func startBroker(t *testing.T, listener listeners.Listener, hook mqtt.Hook) *testBroker {
	t.Helper()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if hook == nil {
		hook = new(auth.AllowHook)
	}
	require.NoError(t, server.AddHook(hook, nil))
	require.NoError(t, server.AddListener(listener))

	broker := &testBroker{Server: server}
	go func() { _ = server.Serve() }()
	t.Cleanup(func() { broker.Close() })

	time.Sleep(50 * time.Millisecond)
	return broker
}

func startTCPBroker(t *testing.T) (*testBroker, string) {
	t.Helper()
	addr := findAvailablePort(t)
	server := startBroker(t, listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr}), nil)
	return server, "tcp://" + addr
}

// messageSink is a Handler collecting messages on a channel.
type messageSink struct {
	messages chan *Message
}

func newMessageSink() *messageSink {
	return &messageSink{messages: make(chan *Message, 16)}
}

func (s *messageSink) OnConnected(Status) {}

func (s *messageSink) OnMessage(status Status, msg *Message) {
	if status == StatusSuccess && msg != nil {
		s.messages <- msg
	}
}

func (s *messageSink) next(t *testing.T) *Message {
	t.Helper()
	select {
	case msg := <-s.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func dialBroker(t *testing.T, address string, handler Handler, opts ...Option) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts = append([]Option{WithPollInterval(5 * time.Millisecond), WithConnectTimeout(2 * time.Second)}, opts...)
	client, err := Dial(ctx, address, handler, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDialPublishSubscribe(t *testing.T) {
	server, address := startTCPBroker(t)

	sink := newMessageSink()
	client := dialBroker(t, address, sink, WithClientID("e2e-sub"))
	assert.True(t, client.IsConnected())

	require.NoError(t, client.Subscribe(context.Background(), "e2e/#"))
	assert.Equal(t, SubscribeAcked, client.SubscribeStatus())

	require.NoError(t, server.Publish("e2e/from-broker", []byte("hello"), false, 0))

	msg := sink.next(t)
	assert.Equal(t, "e2e/from-broker", msg.Topic)
	assert.Equal(t, []byte("hello"), msg.Payload)

	require.NoError(t, client.Publish("e2e/loopback", []byte("echo")))

	msg = sink.next(t)
	assert.Equal(t, "e2e/loopback", msg.Topic)
	assert.Equal(t, []byte("echo"), msg.Payload)
}

func TestDialPublishReachesBroker(t *testing.T) {
	server, address := startTCPBroker(t)

	received := make(chan packets.Packet, 1)
	require.NoError(t, server.Subscribe("sensors/+", 1, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}))

	client := dialBroker(t, address, nil)
	require.NoError(t, client.Publish("sensors/kitchen", []byte("21.5")))

	select {
	case pk := <-received:
		assert.Equal(t, "sensors/kitchen", pk.TopicName)
		assert.Equal(t, []byte("21.5"), pk.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not receive the message")
	}
}

func TestDialUnixSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mqtt.sock")
	server := startBroker(t, listeners.NewUnixSock(listeners.Config{ID: "unix", Address: path}), nil)

	sink := newMessageSink()
	client := dialBroker(t, "unix://"+path, sink)

	require.NoError(t, client.Subscribe(context.Background(), "unix/test"))
	require.NoError(t, server.Publish("unix/test", []byte("over a socket file"), false, 0))

	assert.Equal(t, []byte("over a socket file"), sink.next(t).Payload)
}

func TestDialWebSocket(t *testing.T) {
	addr := findAvailablePort(t)
	server := startBroker(t, listeners.NewWebsocket(listeners.Config{ID: "ws", Address: addr}), nil)

	sink := newMessageSink()
	client := dialBroker(t, "ws://"+addr+"/mqtt", sink)

	require.NoError(t, client.Subscribe(context.Background(), "ws/+"))
	require.NoError(t, server.Publish("ws/data", make([]byte, 300), false, 0))

	msg := sink.next(t)
	assert.Equal(t, "ws/data", msg.Topic)
	assert.Len(t, msg.Payload, 300)
}

func TestDialAuthentication(t *testing.T) {
	addr := findAvailablePort(t)
	startBroker(t, listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr}), &credentialsHook{username: "good"})

	t.Run("accepted", func(t *testing.T) {
		client := dialBroker(t, addr, nil, WithCredentials("good", "secret"))
		assert.True(t, client.IsConnected())
	})

	t.Run("refused", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := Dial(ctx, addr, nil, WithCredentials("bad", "secret"), WithPollInterval(5*time.Millisecond))
		assert.Nil(t, client)
		assert.ErrorIs(t, err, ErrAuthFailed)

		var connErr *ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.True(t, connErr.Code.IsRefusal())
	})
}

func TestDialKeepAlive(t *testing.T) {
	_, address := startTCPBroker(t)

	metrics := NewMemoryMetrics()
	dialBroker(t, address, nil,
		WithKeepAlive(1),
		WithTickInterval(20*time.Millisecond),
		WithMetrics(metrics),
	)

	assert.Eventually(t, func() bool {
		return metrics.CounterValue(MetricPingsSent, nil) >= 2 &&
			metrics.CounterValue(MetricPacketsReceived, MetricLabels{LabelPacketType: "PINGRESP"}) >= 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDialClose(t *testing.T) {
	_, address := startTCPBroker(t)

	var mu sync.Mutex
	var events []error
	client := dialBroker(t, address, nil, OnEvent(func(_ *Client, event error) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}))

	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed")
	}
	assert.NoError(t, client.Err())
	assert.ErrorIs(t, client.Publish("a", nil), ErrClientClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []error{ErrConnected, ErrDisconnected}, events)
}

func TestDialConnectionLost(t *testing.T) {
	server, address := startTCPBroker(t)

	lost := make(chan error, 1)
	client := dialBroker(t, address, nil, OnEvent(func(_ *Client, event error) {
		if errors.Is(event, ErrConnectionLost) {
			lost <- event
		}
	}))

	require.NoError(t, server.Close())

	select {
	case event := <-lost:
		var lostErr *ConnectionLostError
		assert.ErrorAs(t, event, &lostErr)
	case <-time.After(3 * time.Second):
		t.Fatal("connection loss not reported")
	}

	<-client.Done()
	assert.ErrorIs(t, client.Err(), ErrConnectionLost)
	assert.Equal(t, StateDisconnected, client.State())
}

func TestDialLogsRemoteAddr(t *testing.T) {
	_, address := startTCPBroker(t)
	_, target, err := brokerAddress(address)
	require.NoError(t, err)

	var out bytes.Buffer
	client := dialBroker(t, address, nil, WithLogger(NewStdLogger(&out, LogLevelDebug)))
	require.NoError(t, client.Publish("logs/remote", []byte("x")))
	require.NoError(t, client.Close())
	<-client.Done()

	var dispatches int
	for _, line := range strings.Split(out.String(), "\n") {
		if !strings.Contains(line, "] dispatch ") {
			continue
		}
		dispatches++
		assert.Contains(t, line, LogFieldRemoteAddr+"="+target)
	}
	assert.GreaterOrEqual(t, dispatches, 2, "connect and publish dispatches are logged")
}

// pipeBroker answers CONNECT over net.Pipe and writes the frames it gets on
// send afterwards.
func pipeBroker(t *testing.T) (Dialer, chan<- []byte) {
	t.Helper()

	send := make(chan []byte, 1)
	t.Cleanup(func() { close(send) })

	dialer := dialerFunc(func(_ context.Context, _ string) (Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })

		go func() {
			if _, err := ReadFrame(server, nil); err != nil {
				return
			}
			if _, err := server.Write([]byte{0x20, 0x02, 0x00, 0x00}); err != nil {
				return
			}
			for frame := range send {
				if _, err := server.Write(frame); err != nil {
					return
				}
			}
		}()

		return client, nil
	})

	return dialer, send
}

func TestDialMaxPacketSize(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		header  []byte
		wantErr error
	}{
		{
			name:    "default limit",
			header:  []byte{0x30, 0x81, 0x80, 0x40}, // 1 MiB + 1
			wantErr: ErrPacketTooLarge,
		},
		{
			name:    "custom limit",
			opts:    []Option{WithMaxPacketSize(16)},
			header:  []byte{0x30, 0x11},
			wantErr: ErrPacketTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer, send := pipeBroker(t)
			client := dialBroker(t, "tcp://pipe:1883", nil, append(tt.opts, WithDialer(dialer))...)
			require.True(t, client.IsConnected())

			send <- tt.header

			select {
			case <-client.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("oversized frame did not end the connection")
			}

			var lost *ConnectionLostError
			require.ErrorAs(t, client.Err(), &lost)
			assert.ErrorIs(t, lost.Cause, tt.wantErr)
			assert.Equal(t, StateDisconnected, client.State())
		})
	}
}

func TestDialErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "ftp://broker", nil)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = Dial(ctx, "tcp://"+findAvailablePort(t), nil, WithConnectTimeout(time.Second))
	assert.Error(t, err)

	_, err = Dial(ctx, "tcp://broker:1883", nil, WithProxy(ProxyConfig{URL: "ftp://proxy"}))
	assert.ErrorIs(t, err, ErrUnsupportedProxy)
}

func TestDialCustomDialer(t *testing.T) {
	_, address := startTCPBroker(t)
	_, target, err := brokerAddress(address)
	require.NoError(t, err)

	dialer := &countingDialer{next: &TCPDialer{}}
	client := dialBroker(t, "tcp://ignored:1883", nil, WithDialer(dialerFunc(func(ctx context.Context, _ string) (Conn, error) {
		return dialer.Dial(ctx, target)
	})))

	assert.True(t, client.IsConnected())
	assert.Equal(t, 1, dialer.calls)
}

type dialerFunc func(ctx context.Context, address string) (Conn, error)

func (f dialerFunc) Dial(ctx context.Context, address string) (Conn, error) { return f(ctx, address) }

type countingDialer struct {
	next  Dialer
	calls int
}

func (d *countingDialer) Dial(ctx context.Context, address string) (Conn, error) {
	d.calls++
	return d.next.Dial(ctx, address)
}
