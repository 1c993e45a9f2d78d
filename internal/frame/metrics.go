package frame

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_encode_count",
		Help: "The number of encoded uplink frames.",
	})

	eec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_encode_error_count",
		Help: "The number of uplink frames that could not be encoded.",
	})

	dc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_decode_count",
		Help: "The number of decoded downlink frames (per result).",
	}, []string{"result"})
)

func encodeCounter() prometheus.Counter {
	return ec
}

func encodeErrorCounter() prometheus.Counter {
	return eec
}

func decodeCounter(err error) prometheus.Counter {
	var result string

	switch err {
	case nil:
		result = "ok"
	case ErrInvalidMIC:
		result = "invalid_mic"
	case ErrEmptyPayload:
		result = "empty_payload"
	case ErrFrameTooShort:
		result = "too_short"
	case ErrFrameTooLarge:
		result = "too_large"
	default:
		result = "error"
	}

	return dc.With(prometheus.Labels{"result": result})
}
