// Package routingkey encodes and matches topic routing keys of the form
// "<status>.<orderId>".
//
// Matching follows AMQP topic exchange rules: segments are separated by ".",
// "*" matches exactly one segment and "#" matches zero or more segments.
// A pattern must match the whole key, never just a prefix.
package routingkey

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Delimiter separates routing key segments.
	Delimiter = "."

	// SingleWildcard matches exactly one segment in a binding pattern.
	SingleWildcard = "*"

	// MultiWildcard matches zero or more segments in a binding pattern.
	MultiWildcard = "#"

	// StatusNew is the status segment assigned to freshly created orders.
	StatusNew = "new"
)

var (
	// ErrInvalidIdentifier is returned when an order id or status cannot be
	// used as a routing key segment.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidPattern is returned for malformed binding patterns.
	ErrInvalidPattern = errors.New("invalid binding pattern")
)

// Key is an encoded routing key.
type Key string

// String returns the underlying string value.
func (k Key) String() string {
	return string(k)
}

// Encode builds the routing key "<status>.<orderId>".
// Both parts must be literal segments: non-empty and free of the delimiter
// and wildcard characters.
func Encode(status, orderID string) (Key, error) {
	if err := ValidateSegment(status); err != nil {
		return "", fmt.Errorf("%w: status %q: %w", ErrInvalidIdentifier, status, err)
	}
	if err := ValidateSegment(orderID); err != nil {
		return "", fmt.Errorf("%w: order id %q: %w", ErrInvalidIdentifier, orderID, err)
	}
	return Key(status + Delimiter + orderID), nil
}

// Decode splits a routing key produced by Encode back into its status and
// order id.
func Decode(key Key) (status, orderID string, err error) {
	status, orderID, ok := strings.Cut(string(key), Delimiter)
	if !ok {
		return "", "", fmt.Errorf("%w: routing key %q has no delimiter", ErrInvalidIdentifier, key)
	}
	if err := ValidateSegment(status); err != nil {
		return "", "", fmt.Errorf("%w: status in %q: %w", ErrInvalidIdentifier, key, err)
	}
	if err := ValidateSegment(orderID); err != nil {
		return "", "", fmt.Errorf("%w: order id in %q: %w", ErrInvalidIdentifier, key, err)
	}
	return status, orderID, nil
}

// ValidateSegment reports whether s can be used as a literal routing key segment.
func ValidateSegment(s string) error {
	switch {
	case s == "":
		return errors.New("must not be empty")
	case strings.Contains(s, Delimiter):
		return fmt.Errorf("must not contain %q", Delimiter)
	case strings.ContainsAny(s, SingleWildcard+MultiWildcard):
		return errors.New("must not contain wildcard characters")
	}
	return nil
}

// ValidatePattern checks that every segment of a binding pattern is either a
// literal or a whole-segment wildcard.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	for _, seg := range strings.Split(pattern, Delimiter) {
		if seg == SingleWildcard || seg == MultiWildcard {
			continue
		}
		if err := ValidateSegment(seg); err != nil {
			return fmt.Errorf("%w: %q: segment %q %w", ErrInvalidPattern, pattern, seg, err)
		}
	}
	return nil
}

// Matches reports whether key is routed by a topic binding with pattern.
func Matches(pattern string, key Key) bool {
	return match(strings.Split(pattern, Delimiter), strings.Split(string(key), Delimiter))
}

func match(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case MultiWildcard:
			// collapse consecutive "#" segments
			rest := pattern[1:]
			for len(rest) > 0 && rest[0] == MultiWildcard {
				rest = rest[1:]
			}
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if match(rest, key[i:]) {
					return true
				}
			}
			return false
		case SingleWildcard:
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}
