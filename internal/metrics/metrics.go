// Package metrics exposes the prometheus collectors for the chat core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesAppended counts messages committed to the store.
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_appended_total",
		Help: "Number of messages appended to the message store.",
	})

	// StoreRetries counts retried persistence attempts.
	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_store_retries_total",
		Help: "Number of retried store operations after transient failures.",
	})

	// RelayPublishes counts relay publish attempts by event and outcome.
	RelayPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_publishes_total",
		Help: "Relay publish attempts, labelled by event name and outcome.",
	}, []string{"event", "outcome"})
)
