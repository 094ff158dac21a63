package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_documents_ingested_total",
		Help: "Documents that finished ingestion, by outcome.",
	}, []string{"outcome"})

	chunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docqa_chunks_indexed_total",
		Help: "Chunks written to the vector index.",
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docqa_queries_total",
		Help: "Questions answered, by outcome.",
	}, []string{"outcome"})
)
