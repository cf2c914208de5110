// Package pipeline implements the chat ingestion core: the dedup/filter gate,
// the sliding history window, the FIFO job queue with its sequential worker,
// and the per-turn AI+TTS+broadcast processor.
package pipeline

// ChatTurn is one chat message plus its author, the atomic unit of
// processing. Immutable once created; the history window and the job queue
// each hold their own copy.
type ChatTurn struct {
	Username string
	Message  string
}
