package notify

import "context"

// ImportCompletedEvent summarizes one finished bulk import.
type ImportCompletedEvent struct {
	At       int64  `json:"atMs"`
	BatchID  string `json:"batchId"`
	Kind     string `json:"kind"`
	Source   string `json:"source,omitempty"`
	Imported int    `json:"imported"`
	Failed   int    `json:"failed"`
	Message  string `json:"message"`
}

type Notifier interface {
	NotifyImportCompleted(ctx context.Context, evt ImportCompletedEvent)
}
