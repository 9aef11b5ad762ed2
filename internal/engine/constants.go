package engine

import "time"

// Tunables governing chunk size, timeout budgets, the digest send
// window, and the token-budget batcher.
const (
	Chunk               = 48 * time.Hour
	ProcessingTimeout   = 10 * time.Minute
	PassiveBackstop     = 24 * time.Hour
	PassiveSafetyBuffer = 30 * time.Minute
	KickoffDelay        = 1 * time.Minute
	DispatcherInterval  = 1 * time.Hour

	MaxTokens     = 200_000
	TokensPerChar = 0.25

	DigestWindowStartHour = 21
	DigestWindowEndHour   = 24

	AccumulatorBlobName = "mailtriage-accumulated-results.json"

	handlerDispatcher = "dispatcher"
	handlerChunkStep  = "chunk_step"

	dedupHandlerPassive = "passive-ignore"
)

// expectedStartBuffer is the formula the active engine uses to compute
// how long a scheduled chunk start may be overdue before it counts as
// a hang: a fixed fraction of the scheduling delay plus a flat margin.
func expectedStartBuffer(delay time.Duration) time.Duration {
	return time.Duration(0.3*float64(delay)) + 10*time.Minute
}

// KV key names. Every engine component that mutates shared state goes
// through KVStore under one of these, never an in-process variable.
const (
	keyStatus                 = "status"
	keyStatusMsg              = "statusMsg"
	keyRunID                  = "runId"
	keyStartedAt              = "startedAt"
	keyTimeRange              = "timeRange"
	keyChunkWindowStart       = "chunkWindowStart"
	keyChunkWindowEnd         = "chunkWindowEnd"
	keyChunkIndex             = "chunkIndex"
	keyChunkTotal             = "chunkTotal"
	keyAccumulatedInFlight    = "accumulatedInFlight"
	keyChunkStartedAt         = "chunkStartedAt"
	keyExpectedChunkStartBy   = "expectedChunkStartBy"
	keyPassiveLastMsgTs       = "passiveLastMsgTs"
	keyPassiveLastMsgID       = "passiveLastMsgId"
	keyPassiveLastSummaryDate = "passiveLastSummaryDate"
	keyPassiveLastRunAt       = "passiveLastRunAt"
	keyLatestRunStats         = "latestRunStats"
	keyAccumulatorHandle      = "accumulatorBlobHandle"
)
