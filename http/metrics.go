package http

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	msgTypeLabel = "msg_type"
)

var (
	streamConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_connected_clients",
		Help: "The number of clients connected to the candidate stream.",
	})

	streamSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_sent_msgs",
		Help: "The number of messages sent to candidate stream connections.",
	}, []string{
		msgTypeLabel,
	})

	streamSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_send_errors",
		Help: "The errors that occured while sending a candidate stream message.",
	}, []string{
		msgTypeLabel,
		errTypeLabel,
	})
)

func instrumentSend(msgType string, err error) {
	if err != nil {
		streamSendErrors.
			With(prometheus.Labels{
				msgTypeLabel: msgType,
				errTypeLabel: errors.Type(err),
			}).
			Inc()
		return
	}

	streamSentMsgs.
		With(prometheus.Labels{msgTypeLabel: msgType}).
		Inc()
}
