// Package router demultiplexes the single message callback of an mqtt311
// client by topic filter and message attributes.
package router

import (
	"regexp"
	"slices"
	"sync"

	"github.com/vitalvas/mqtt311"
)

// Handler processes an MQTT message.
type Handler func(msg *mqtt311.Message)

// Condition defines filtering criteria for message routing.
type Condition struct {
	topicFilter   *string
	qos           *mqtt311.QoS
	retain        *bool
	payloadRegexp *regexp.Regexp
}

// ConditionOption configures a Condition.
type ConditionOption func(*Condition)

// WithTopic sets the topic filter for message matching.
// Supports MQTT wildcards: + (single level) and # (multi level).
func WithTopic(filter string) ConditionOption {
	return func(c *Condition) {
		c.topicFilter = &filter
	}
}

// WithQoS filters messages by QoS level.
func WithQoS(qos mqtt311.QoS) ConditionOption {
	return func(c *Condition) {
		c.qos = &qos
	}
}

// WithRetain filters messages by the retain flag.
func WithRetain(retain bool) ConditionOption {
	return func(c *Condition) {
		c.retain = &retain
	}
}

// WithPayload filters messages whose payload matches pattern.
func WithPayload(pattern *regexp.Regexp) ConditionOption {
	return func(c *Condition) {
		c.payloadRegexp = pattern
	}
}

// registration holds a handler with its conditions.
type registration struct {
	seq       int
	handler   Handler
	condition Condition
}

// Router dispatches messages to handlers based on conditions.
// It implements mqtt311.Handler and can be passed to NewClient or Dial.
type Router struct {
	mu       sync.RWMutex
	seq      int
	byTopic  mqtt311.TopicTrie[*registration]
	anyTopic []*registration
	filters  []string

	onConnected func(mqtt311.Status)
	onError     func(mqtt311.Status)
}

// New creates a new Router.
func New() *Router {
	return &Router{}
}

// Handle registers a handler with optional conditions. It fails only for a
// malformed topic filter.
//
// Examples:
//
//	r.Handle(handler, WithTopic("sensors/#"))
//	r.Handle(handler, WithTopic("sensors/#"), WithQoS(mqtt311.QoS1))
//	r.Handle(handler, WithTopic("alerts/+"), WithPayload(regexp.MustCompile(`^critical`)))
func (r *Router) Handle(handler Handler, opts ...ConditionOption) error {
	var cond Condition
	for _, opt := range opts {
		opt(&cond)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reg := &registration{seq: r.seq, handler: handler, condition: cond}

	if cond.topicFilter == nil {
		r.anyTopic = append(r.anyTopic, reg)
	} else {
		if err := r.byTopic.Add(*cond.topicFilter, reg); err != nil {
			return err
		}
		r.filters = append(r.filters, *cond.topicFilter)
	}

	r.seq++
	return nil
}

// HandleConnected sets the callback for CONNACK results.
func (r *Router) HandleConnected(fn func(status mqtt311.Status)) {
	r.mu.Lock()
	r.onConnected = fn
	r.mu.Unlock()
}

// HandleError sets the callback for PUBLISH decode errors and failed
// SUBACKs.
func (r *Router) HandleError(fn func(status mqtt311.Status)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// OnConnected implements mqtt311.Handler.
func (r *Router) OnConnected(status mqtt311.Status) {
	r.mu.RLock()
	fn := r.onConnected
	r.mu.RUnlock()

	if fn != nil {
		fn(status)
	}
}

// OnMessage implements mqtt311.Handler. Messages are routed; a non-success
// status goes to the error callback.
func (r *Router) OnMessage(status mqtt311.Status, msg *mqtt311.Message) {
	if status != mqtt311.StatusSuccess {
		r.mu.RLock()
		fn := r.onError
		r.mu.RUnlock()

		if fn != nil {
			fn(status)
		}
		return
	}

	r.Route(msg)
}

// matches checks if the non-topic parts of a condition match the message.
func (c *Condition) matches(msg *mqtt311.Message) bool {
	if c.qos != nil && *c.qos != msg.QoS {
		return false
	}
	if c.retain != nil && *c.retain != msg.Retain {
		return false
	}
	if c.payloadRegexp != nil && !c.payloadRegexp.Match(msg.Payload) {
		return false
	}
	return true
}

// Route dispatches a message to all matching handlers in registration order.
func (r *Router) Route(msg *mqtt311.Message) {
	if msg == nil {
		return
	}

	r.mu.RLock()
	candidates := append(r.byTopic.Match(msg.Topic), r.anyTopic...)
	r.mu.RUnlock()

	slices.SortFunc(candidates, func(a, b *registration) int { return a.seq - b.seq })

	for _, reg := range candidates {
		if reg.condition.matches(msg) {
			reg.handler(msg)
		}
	}
}

// Filters returns all unique registered topic filters in registration order.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	filters := make([]string, 0, len(r.filters))
	for _, filter := range r.filters {
		if _, ok := seen[filter]; ok {
			continue
		}
		seen[filter] = struct{}{}
		filters = append(filters, filter)
	}
	return filters
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTopic.Len() + len(r.anyTopic)
}

// Clear removes all handlers.
func (r *Router) Clear() {
	r.mu.Lock()
	r.byTopic = mqtt311.TopicTrie[*registration]{}
	r.anyTopic = nil
	r.filters = nil
	r.mu.Unlock()
}
