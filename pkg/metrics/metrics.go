// Package metrics exposes the engine, feed, and parser statistics named
// in the spec as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Engine metrics.
var (
	EngineTotalTrades = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_engine_total_trades",
			Help: "Total number of trades executed by the matching engine",
		},
	)

	EngineTotalVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_engine_total_volume",
			Help: "Total traded quantity across all trades",
		},
	)

	EngineOrdersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_engine_orders_submitted_total",
			Help: "Total number of orders submitted to the engine",
		},
	)

	EngineOrdersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_engine_orders_cancelled_total",
			Help: "Total number of orders cancelled through the engine",
		},
	)

	EngineOrderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "atlasbook_engine_submit_latency_seconds",
			Help:    "Latency in seconds to process a single SubmitOrder call",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Feed handler metrics.
var (
	FeedMessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_feed_messages_received_total",
			Help: "Total number of L2 updates enqueued onto the feed ring",
		},
	)

	FeedMessagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_feed_messages_processed_total",
			Help: "Total number of L2 updates drained and applied",
		},
	)

	FeedSequenceGaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_feed_sequence_gaps_total",
			Help: "Total number of detected sequence discontinuities",
		},
	)

	FeedParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_feed_parse_errors_total",
			Help: "Total number of malformed or undecodable wire messages",
		},
	)

	FeedBufferOverflows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_feed_buffer_overflows_total",
			Help: "Total number of enqueue attempts rejected by a full ring",
		},
	)

	FeedLastSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "atlasbook_feed_last_sequence",
			Help: "Sequence number of the most recently processed L2 update",
		},
	)
)

// Parser (ITCH decoder) metrics.
var (
	ParserMessagesParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_parser_messages_parsed_total",
			Help: "Total number of ITCH messages successfully decoded",
		},
	)

	ParserBytesParsed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "atlasbook_parser_bytes_parsed_total",
			Help: "Total number of wire bytes consumed by the decoder",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EngineTotalTrades, EngineTotalVolume, EngineOrdersSubmitted, EngineOrdersCancelled, EngineOrderLatency,
		FeedMessagesReceived, FeedMessagesProcessed, FeedSequenceGaps, FeedParseErrors, FeedBufferOverflows, FeedLastSequence,
		ParserMessagesParsed, ParserBytesParsed,
	)
}
