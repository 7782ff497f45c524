// Package mqtt311 provides a compact MQTT 3.1.1 client.
//
// This package implements the client side of the MQTT Version 3.1.1 OASIS
// Standard: https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/mqtt-v3.1.1.html
//
// # Features
//
//   - CONNECT, CONNACK, PUBLISH, SUBSCRIBE, SUBACK, PINGREQ, PINGRESP and DISCONNECT
//   - QoS is encoded and decoded; acknowledgement flows for QoS 1 and 2 are not run
//   - A single-threaded connection state machine with an injected transport
//   - Keepalive scheduling driven by the caller
//   - Transport: TCP, WebSocket, Unix socket, optionally through a SOCKS5 or HTTP proxy
//
// # Codec
//
// Packets are encoded in two passes: the body size is computed first, then
// the fixed header and body are written into the caller's buffer.
//
//	frame, err := mqtt311.MarshalPacket(buf, &mqtt311.PublishPacket{
//	    Topic:   "sensors/temp",
//	    Payload: []byte("21.5"),
//	})
//
// Incoming frames are parsed with ParseFrame. ReadFrame and ReadPacket read
// one complete frame from a byte stream.
//
// # Connection
//
// Connection is the protocol state machine. Every request is an Action passed
// to Dispatch, which returns a Status:
//
//	conn := mqtt311.NewConnection(mqtt311.ConnectionConfig{
//	    Sender:  sender,
//	    Handler: handler,
//	    Buffer:  make([]byte, 0, 1024),
//	})
//	status := conn.Dispatch(mqtt311.ConnectAction{Packet: &mqtt311.ConnectPacket{ClientID: "dev-1"}})
//
// Connection never starts goroutines and only blocks inside Sender.Send.
//
// # Client
//
// Client wraps a Connection with a lock, option handling and blocking waits
// for CONNACK and SUBACK. The caller supplies the transport:
//
//	client := mqtt311.NewClient(sender, handler, mqtt311.WithClientID("dev-1"))
//	err := client.Connect(ctx)
//	// feed every frame read from the network:
//	err = client.Receive(frame)
//	// call periodically:
//	err = client.KeepAlive(time.Second)
//
// Dial creates a client that owns its network connection and runs the
// receive and keepalive loops itself:
//
//	client, err := mqtt311.Dial(ctx, "tcp://localhost:1883", handler,
//	    mqtt311.WithClientID("dev-1"),
//	    mqtt311.WithKeepAlive(30),
//	)
//	defer client.Close()
//
//	err = client.Subscribe(ctx, "sensors/#")
//	err = client.Publish("sensors/temp", []byte("21.5"))
//
// WebSocket and Unix socket brokers:
//
//	client, err := mqtt311.Dial(ctx, "ws://localhost:8080/mqtt", handler)
//	client, err := mqtt311.Dial(ctx, "unix:///var/run/mqtt.sock", handler)
//
// # Errors
//
// Dispatch results are Status values, which implement error. Client methods
// return nil for success and otherwise an error that matches the Status and
// the client sentinel with errors.Is:
//
//	if errors.Is(err, mqtt311.ErrNotConnected) { ... }
//	if errors.Is(err, mqtt311.StatusNotAuthorized) { ... }
//
// # Observability
//
// Logging goes through the Logger interface (StdLogger, SlogLogger or
// NoOpLogger). Metrics go through the Metrics interface with in-memory and
// Prometheus implementations.
package mqtt311
