package kafka

import (
	"github.com/cschleiden/go-tasks/internal/tracing"
	"github.com/segmentio/kafka-go"
)

const originHeader = "tasks-origin"

func toHeaders(origin string, tc tracing.Context) []kafka.Header {
	headers := make([]kafka.Header, 0, len(tc)+1)
	headers = append(headers, kafka.Header{Key: originHeader, Value: []byte(origin)})

	for k, v := range tc {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return headers
}

// fromHeaders splits message headers into the publishing origin and the trace context
func fromHeaders(headers []kafka.Header) (string, tracing.Context) {
	var origin string
	tc := make(tracing.Context)

	for _, h := range headers {
		if h.Key == originHeader {
			origin = string(h.Value)
			continue
		}

		tc.Set(h.Key, string(h.Value))
	}

	return origin, tc
}
