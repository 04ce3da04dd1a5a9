package logbus

// Message types carried on the bus.
const (
	TypeLog            = "log"
	TypeProfileState   = "profile_state"
	TypeImportProgress = "import_progress"
)

type LogEvent struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Fields map[string]any `json:"fields,omitempty"`
}

// ProfileStateEvent reports a Vision profile transition of one account.
// ProfileID is empty once the profile has been removed.
type ProfileStateEvent struct {
	AccountID string `json:"accountId"`
	State     string `json:"state"`
	ProfileID string `json:"profileId,omitempty"`
}

type ImportProgressEvent struct {
	BatchID  string `json:"batchId"`
	Role     string `json:"role"`
	Done     int    `json:"done"`
	Total    int    `json:"total"`
	Imported int    `json:"imported"`
	Failed   int    `json:"failed"`
}

func (b *Bus) PublishProfileState(e ProfileStateEvent) {
	b.Publish(TypeProfileState, e)
}

func (b *Bus) PublishImportProgress(e ImportProgressEvent) {
	b.Publish(TypeImportProgress, e)
}
