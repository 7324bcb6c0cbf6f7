package messaging

import (
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
)

// Metadata keys set on consumed messages in addition to the AMQP headers.
const (
	MetadataRoutingKey  = "amqp.routing_key"
	MetadataExchange    = "amqp.exchange"
	MetadataRedelivered = "amqp.redelivered"
)

const instrumentationName = "github.com/ghuser/orderflow/pkg/messaging"

// headersFromMetadata copies message metadata into an AMQP header table.
func headersFromMetadata(md message.Metadata) amqp.Table {
	headers := make(amqp.Table, len(md))
	for k, v := range md {
		headers[k] = v
	}
	return headers
}

// toMessage converts a delivery into a watermill message. Header values
// are stringified; the routing key, exchange and redelivery flag are added
// under the Metadata* keys.
func toMessage(d amqp.Delivery) *message.Message {
	msg := message.NewMessage(d.MessageId, message.Payload(d.Body))
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			msg.Metadata.Set(k, val)
		case []byte:
			msg.Metadata.Set(k, string(val))
		default:
			msg.Metadata.Set(k, fmt.Sprint(val))
		}
	}
	msg.Metadata.Set(MetadataRoutingKey, d.RoutingKey)
	msg.Metadata.Set(MetadataExchange, d.Exchange)
	msg.Metadata.Set(MetadataRedelivered, strconv.FormatBool(d.Redelivered))
	return msg
}

// carrierFrom builds a propagation carrier from message metadata.
func carrierFrom(md message.Metadata) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	for k, v := range md {
		carrier[k] = v
	}
	return carrier
}

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// counter creates an Int64Counter, falling back to a no-op instrument if
// the provider rejects it.
func counter(name, desc string) metric.Int64Counter {
	c, err := meter().Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}
