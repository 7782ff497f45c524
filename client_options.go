package mqtt311

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Defaults applied by NewClient and Dial.
const (
	DefaultKeepAlive        uint16 = 60
	DefaultBufferSize              = 1024
	DefaultConnectTimeout          = 10 * time.Second
	DefaultSubscribeTimeout        = 10 * time.Second
	DefaultPollInterval            = 100 * time.Millisecond
	DefaultTickInterval            = time.Second
	DefaultWriteTimeout            = 5 * time.Second

	// DefaultMaxPacketSize caps the remaining length a dialed client reads.
	DefaultMaxPacketSize uint32 = 1 << 20

	// maxClientIDLength is the longest identifier every 3.1.1 broker must accept.
	maxClientIDLength = 23
)

// clientOptions holds configuration for a Client.
type clientOptions struct {
	clientID     string
	username     string
	password     []byte
	keepAlive    uint16
	cleanSession bool

	willTopic   string
	willMessage []byte
	willQoS     QoS
	willRetain  bool

	buffer     []byte
	bufferSize int

	connectTimeout   time.Duration
	subscribeTimeout time.Duration
	pollInterval     time.Duration

	// stream transport (Dial only)
	tickInterval  time.Duration
	writeTimeout  time.Duration
	maxPacketSize uint32
	proxyConfig   *ProxyConfig
	proxyFromEnv  bool
	wsHeader      http.Header
	dialer        Dialer

	publishLimit rate.Limit
	publishBurst int

	logger  Logger
	metrics Metrics
	onEvent EventHandler
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		keepAlive:        DefaultKeepAlive,
		cleanSession:     true,
		bufferSize:       DefaultBufferSize,
		connectTimeout:   DefaultConnectTimeout,
		subscribeTimeout: DefaultSubscribeTimeout,
		pollInterval:     DefaultPollInterval,
		tickInterval:     DefaultTickInterval,
		writeTimeout:     DefaultWriteTimeout,
		maxPacketSize:    DefaultMaxPacketSize,
		publishLimit:     rate.Inf,
		logger:           NewNoOpLogger(),
		metrics:          &NoOpMetrics{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithClientID sets the client identifier. Without it a random identifier
// is generated.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithCredentials sets the username and password sent in CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = []byte(password)
	}
}

// WithKeepAlive sets the keepalive in seconds. Zero disables pings.
func WithKeepAlive(seconds uint16) Option {
	return func(o *clientOptions) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets the clean session flag. Defaults to true.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithWill sets the last will. It is only sent when both topic and message
// are non-empty.
func WithWill(topic string, message []byte, retain bool, qos QoS) Option {
	return func(o *clientOptions) {
		o.willTopic = topic
		o.willMessage = message
		o.willRetain = retain
		o.willQoS = qos
	}
}

// WithBuffer makes the client build frames in buf. Frames larger than
// cap(buf) are rejected.
func WithBuffer(buf []byte) Option {
	return func(o *clientOptions) {
		o.buffer = buf
	}
}

// WithBufferSize sets the size of the transmit buffer allocated by the
// client. Zero allocates a fresh buffer per frame.
func WithBufferSize(size int) Option {
	return func(o *clientOptions) {
		o.bufferSize = size
	}
}

// WithConnectTimeout sets how long Connect waits for CONNACK. Zero returns
// right after CONNECT is sent.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.connectTimeout = d
	}
}

// WithSubscribeTimeout sets how long Subscribe waits for SUBACK. Zero
// returns right after SUBSCRIBE is sent.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.subscribeTimeout = d
	}
}

// WithPollInterval sets how often Connect and Subscribe check for the
// acknowledgement.
func WithPollInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithTickInterval sets how often a dialed client advances its keepalive.
func WithTickInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithWriteTimeout bounds every write of a dialed client. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.writeTimeout = d
	}
}

// WithMaxPacketSize limits the remaining length of frames a dialed client
// accepts. Defaults to DefaultMaxPacketSize; zero means the protocol maximum
// of 268435455 bytes, which a broker can make the client allocate.
func WithMaxPacketSize(size uint32) Option {
	return func(o *clientOptions) {
		o.maxPacketSize = size
	}
}

// WithProxy tunnels tcp:// and ws:// connections through an explicit proxy.
func WithProxy(cfg ProxyConfig) Option {
	return func(o *clientOptions) {
		o.proxyConfig = &cfg
	}
}

// WithProxyFromEnvironment picks the proxy from HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY.
func WithProxyFromEnvironment() Option {
	return func(o *clientOptions) {
		o.proxyFromEnv = true
	}
}

// WithWebSocketHeader adds headers to the WebSocket handshake.
func WithWebSocketHeader(h http.Header) Option {
	return func(o *clientOptions) {
		o.wsHeader = h
	}
}

// WithDialer replaces the scheme based dialer used by Dial.
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithPublishRate limits publishes to r per second with the given burst.
func WithPublishRate(r float64, burst int) Option {
	return func(o *clientOptions) {
		if r <= 0 {
			o.publishLimit = rate.Inf
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.publishLimit = rate.Limit(r)
		o.publishBurst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// OnEvent registers a lifecycle event handler.
func OnEvent(handler EventHandler) Option {
	return func(o *clientOptions) {
		o.onEvent = handler
	}
}

func applyOptions(opts ...Option) *clientOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.clientID == "" {
		o.clientID = generateClientID()
	}
	return o
}

// generateClientID returns "mqtt311-" followed by random hex, 23 bytes long.
func generateClientID() string {
	const prefix = "mqtt311-"
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + id[:maxClientIDLength-len(prefix)]
}

// connectPacket builds the CONNECT packet described by the options.
func (o *clientOptions) connectPacket() *ConnectPacket {
	return &ConnectPacket{
		ClientID:     o.clientID,
		CleanSession: o.cleanSession,
		KeepAlive:    o.keepAlive,
		Username:     o.username,
		Password:     o.password,
		WillTopic:    o.willTopic,
		WillMessage:  o.willMessage,
		WillQoS:      o.willQoS,
		WillRetain:   o.willRetain,
	}
}

// transmitBuffer returns the caller's buffer or allocates one.
func (o *clientOptions) transmitBuffer() []byte {
	if o.buffer != nil {
		return o.buffer
	}
	if o.bufferSize > 0 {
		return make([]byte, 0, o.bufferSize)
	}
	return nil
}
