package mqtt311

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Topic errors.
var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

func validTopicString(s string) bool {
	return len(s) <= maxUint16 && utf8.ValidString(s) && strings.IndexByte(s, 0) < 0
}

// ValidateTopicName checks a PUBLISH topic: non-empty, valid UTF-8 without
// NUL and without wildcards.
func ValidateTopicName(topic string) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if !validTopicString(topic) || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateTopicFilter checks a SUBSCRIBE filter. '+' must fill a whole
// level; '#' must fill the last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" {
		return ErrEmptyTopic
	}
	if !validTopicString(filter) {
		return ErrInvalidTopicFilter
	}

	rest := filter
	for {
		level, tail, more := strings.Cut(rest, topicSeparator)

		switch {
		case level == multiLevelWildcard:
			if more {
				return ErrInvalidTopicFilter
			}
		case level == singleLevelWildcard:
		case strings.ContainsAny(level, "+#"):
			return ErrInvalidTopicFilter
		}

		if !more {
			return nil
		}
		rest = tail
	}
}

// IsSystemTopic reports whether topic starts with '$'. Such topics are not
// matched by a leading wildcard.
func IsSystemTopic(topic string) bool {
	return strings.HasPrefix(topic, "$")
}

// TopicMatch reports whether topic matches filter.
func TopicMatch(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if IsSystemTopic(topic) && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	f, t := filter, topic
	for {
		flevel, frest, fmore := strings.Cut(f, topicSeparator)
		if flevel == multiLevelWildcard {
			return true
		}

		tlevel, trest, tmore := strings.Cut(t, topicSeparator)
		if flevel != singleLevelWildcard && flevel != tlevel {
			return false
		}

		switch {
		case !fmore && !tmore:
			return true
		case !tmore:
			// "a/#" also matches "a"
			return frest == multiLevelWildcard
		case !fmore:
			return false
		}

		f, t = frest, trest
	}
}

// TopicTrie indexes values by topic filter for fast lookup by topic name.
// It is not safe for concurrent use.
type TopicTrie[T comparable] struct {
	root trieNode[T]
	size int
}

type trieNode[T comparable] struct {
	children map[string]*trieNode[T]
	values   []T
}

// Add stores v under filter.
func (t *TopicTrie[T]) Add(filter string, v T) error {
	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	node := &t.root
	for _, level := range strings.Split(filter, topicSeparator) {
		if node.children == nil {
			node.children = make(map[string]*trieNode[T])
		}
		child, ok := node.children[level]
		if !ok {
			child = &trieNode[T]{}
			node.children[level] = child
		}
		node = child
	}

	node.values = append(node.values, v)
	t.size++
	return nil
}

// Remove deletes one occurrence of v under filter and reports whether it
// was present.
func (t *TopicTrie[T]) Remove(filter string, v T) bool {
	node := &t.root
	for _, level := range strings.Split(filter, topicSeparator) {
		child, ok := node.children[level]
		if !ok {
			return false
		}
		node = child
	}

	for i, existing := range node.values {
		if existing == v {
			node.values = append(node.values[:i], node.values[i+1:]...)
			t.size--
			return true
		}
	}
	return false
}

// Len returns the number of stored values.
func (t *TopicTrie[T]) Len() int { return t.size }

// Match returns the values of every filter matching topic.
func (t *TopicTrie[T]) Match(topic string) []T {
	if ValidateTopicName(topic) != nil {
		return nil
	}

	var out []T
	t.root.match(strings.Split(topic, topicSeparator), 0, IsSystemTopic(topic), &out)
	return out
}

func (n *trieNode[T]) match(levels []string, idx int, system bool, out *[]T) {
	wild := !system || idx > 0

	if wild {
		if child, ok := n.children[multiLevelWildcard]; ok {
			*out = append(*out, child.values...)
		}
	}

	if idx == len(levels) {
		*out = append(*out, n.values...)
		return
	}

	if child, ok := n.children[levels[idx]]; ok {
		child.match(levels, idx+1, system, out)
	}
	if wild {
		if child, ok := n.children[singleLevelWildcard]; ok {
			child.match(levels, idx+1, system, out)
		}
	}
}
