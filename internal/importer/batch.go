package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_sync/internal/apperr"
	"account_sync/internal/logbus"
	"account_sync/internal/model"
	"account_sync/internal/notify"
)

const (
	msgNoValidAccounts = "No valid accounts found to import"
	progressEvery      = 50
)

type Store interface {
	FindAccountByLogin(ctx context.Context, kind model.AccountKind, login string) (model.Account, bool, error)
	CreateAccount(ctx context.Context, acc model.Account) (model.Account, error)
}

type Request struct {
	Content   string
	Separator string
	Mappings  []FieldMapping
	Role      Role
	// Source names the uploaded file or path for logs and reports.
	Source string
}

type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Imported int    `json:"imported"`
	Failed   int    `json:"failed"`
}

type Batcher struct {
	store    Store
	bus      *logbus.Bus
	notifier notify.Notifier
	now      func() time.Time
}

func NewBatcher(store Store, bus *logbus.Bus, notifier notify.Notifier) *Batcher {
	return &Batcher{store: store, bus: bus, notifier: notifier, now: time.Now}
}

func (b *Batcher) SetClock(now func() time.Time) {
	if now != nil {
		b.now = now
	}
}

// Import parses req.Content line by line and stores every new account.
// Per-record problems are counted in Failed; only pipeline faults produce
// Success=false. Once started, a batch runs to the end even if ctx is
// cancelled.
func (b *Batcher) Import(ctx context.Context, req Request) (res Result) {
	ctx = context.WithoutCancel(ctx)
	batchID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			b.log("error", "bulk import aborted", map[string]any{"batchId": batchID, "panic": fmt.Sprint(r)})
			res = Result{Message: fmt.Sprintf("Failed to process the file content: %v", r)}
		}
	}()

	if req.Separator == "" {
		return failure(apperr.Errorf(apperr.Validation, "import", "separator is required"))
	}
	if err := ValidateMappings(req.Mappings); err != nil {
		return failure(err)
	}

	started := b.now()
	defaults := req.Role.Defaults(started)

	var (
		records  []Record
		rejected int
	)
	for _, line := range strings.Split(req.Content, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, ok := ParseLine(line, req.Separator, req.Mappings, defaults)
		if !ok {
			rejected++
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		b.log("warn", "bulk import found no valid accounts", map[string]any{
			"batchId":  batchID,
			"role":     req.Role.String(),
			"rejected": rejected,
		})
		return Result{Message: msgNoValidAccounts}
	}

	kind := req.Role.Kind()
	res = Result{Success: true, Failed: rejected}
	total := len(records)
	for i, rec := range records {
		if b.importOne(ctx, batchID, kind, rec) {
			res.Imported++
		} else {
			res.Failed++
		}
		if (i+1)%progressEvery == 0 || i+1 == total {
			b.progress(batchID, req.Role, i+1, total, res)
		}
	}

	res.Message = fmt.Sprintf("Import completed: %d successful, %d failed", res.Imported, res.Failed)
	b.log("info", "bulk import finished", map[string]any{
		"batchId":  batchID,
		"role":     req.Role.String(),
		"imported": res.Imported,
		"failed":   res.Failed,
		"took":     b.now().Sub(started).String(),
	})
	if b.notifier != nil {
		b.notifier.NotifyImportCompleted(ctx, notify.ImportCompletedEvent{
			At:       b.now().UnixMilli(),
			BatchID:  batchID,
			Kind:     string(kind),
			Source:   req.Source,
			Imported: res.Imported,
			Failed:   res.Failed,
			Message:  res.Message,
		})
	}
	return res
}

func (b *Batcher) importOne(ctx context.Context, batchID string, kind model.AccountKind, rec Record) bool {
	_, exists, err := b.store.FindAccountByLogin(ctx, kind, rec.Login)
	if err != nil {
		b.log("warn", "account lookup failed", map[string]any{"batchId": batchID, "login": rec.Login, "error": err.Error()})
		return false
	}
	if exists {
		b.log("debug", "duplicate login skipped", map[string]any{"batchId": batchID, "login": rec.Login})
		return false
	}
	if _, err := b.store.CreateAccount(ctx, rec.Account(kind)); err != nil {
		b.log("warn", "failed to import account", map[string]any{"batchId": batchID, "login": rec.Login, "error": err.Error()})
		return false
	}
	return true
}

func (b *Batcher) progress(batchID string, role Role, done, total int, res Result) {
	b.bus.PublishImportProgress(logbus.ImportProgressEvent{
		BatchID:  batchID,
		Role:     role.String(),
		Done:     done,
		Total:    total,
		Imported: res.Imported,
		Failed:   res.Failed,
	})
}

func (b *Batcher) log(level, msg string, fields map[string]any) {
	if b.bus != nil {
		b.bus.Log(level, msg, fields)
	}
}

func failure(err error) Result {
	return Result{Message: err.Error()}
}
