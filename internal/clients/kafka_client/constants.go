package kafka_client

import "time"

const (
	KAFKA_TOPIC_ANALYZE_REQUESTS = "analyze-requests" // jobs submitted for asynchronous analysis
	KAFKA_TOPIC_ANALYZE_RESULTS  = "analyze-results"  // one analyzed batch per job
	KAFKA_TOPIC_ANALYZE_FAILED   = "analyze-failed"   // jobs that could not be analyzed
)

const (
	MAX_RETRIES   = 5
	RETRY_DELAY   = 2 * time.Second
	POLL_TIMEOUT  = 500 * time.Millisecond
	FLUSH_TIMEOUT = 5000
)
