// Package messaging moves domain events over Kafka with the trace context
// carried in message headers.
package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

var _ propagation.TextMapCarrier = headerCarrier{}

// headerCarrier exposes the headers of a message to an otel propagator.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	i := slices.IndexFunc(c.msg.Headers, func(h kafka.Header) bool { return h.Key == key })
	if i < 0 {
		return ""
	}
	return string(c.msg.Headers[i].Value)
}

func (c headerCarrier) Set(key, value string) {
	i := slices.IndexFunc(c.msg.Headers, func(h kafka.Header) bool { return h.Key == key })
	if i >= 0 {
		c.msg.Headers[i].Value = []byte(value)
		return
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func header(msg kafka.Message, key string) string {
	return headerCarrier{msg: &msg}.Get(key)
}
