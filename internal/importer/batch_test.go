package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"account_sync/internal/logbus"
	"account_sync/internal/model"
	"account_sync/internal/notify"
	"account_sync/internal/store/sqlite"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.ImportCompletedEvent
}

func (c *captureNotifier) NotifyImportCompleted(_ context.Context, evt notify.ImportCompletedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "import.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestImportSingleLine(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	b := NewBatcher(st, nil, nil)

	res := b.Import(ctx, Request{Content: "alice|pw123", Separator: "|", Mappings: loginPassword})
	want := Result{Success: true, Message: "Import completed: 1 successful, 0 failed", Imported: 1}
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}

	acc, ok, err := st.FindAccountByLogin(ctx, model.AccountKindFB, "alice")
	if err != nil || !ok {
		t.Fatalf("account not stored: ok=%v err=%v", ok, err)
	}
	if acc.PlainPassword != "pw123" || acc.Geo != model.GeoUA || acc.Gender != "unknown" || acc.AccountStatus != model.StatusPurchased {
		t.Fatalf("stored account = %+v", acc)
	}
	if acc.ProfileState != model.ProfileStateNone {
		t.Fatalf("profile state = %q", acc.ProfileState)
	}
}

func TestImportCountsMalformedLines(t *testing.T) {
	st := openStore(t)
	b := NewBatcher(st, nil, nil)

	content := "alice|pw1\nbroken-line\r\nbob|pw2\n\n   \n"
	res := b.Import(context.Background(), Request{Content: content, Separator: "|", Mappings: loginPassword})
	if !res.Success || res.Imported != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Import completed: 2 successful, 1 failed" {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestImportNoValidAccounts(t *testing.T) {
	b := NewBatcher(openStore(t), nil, nil)
	for _, content := range []string{"", "\n\n  \n", "only-login\nanother"} {
		res := b.Import(context.Background(), Request{Content: content, Separator: "|", Mappings: loginPassword})
		want := Result{Message: "No valid accounts found to import"}
		if res != want {
			t.Fatalf("content %q: result = %+v", content, res)
		}
	}
}

func TestImportSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	notifier := &captureNotifier{}
	b := NewBatcher(st, nil, notifier)
	req := Request{Content: "alice|pw1\nbob|pw2", Separator: "|", Mappings: loginPassword}

	if res := b.Import(ctx, req); res.Imported != 2 || res.Failed != 0 {
		t.Fatalf("first import = %+v", res)
	}
	res := b.Import(ctx, req)
	if !res.Success || res.Imported != 0 || res.Failed != 2 {
		t.Fatalf("second import = %+v", res)
	}

	accounts, err := st.ListAccounts(ctx, model.AccountKindFB)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d, want 2", len(accounts))
	}
	if len(notifier.events) != 2 || notifier.events[1].Failed != 2 || notifier.events[1].Kind != "fb" {
		t.Fatalf("notifications = %+v", notifier.events)
	}
}

func TestImportDuplicateWithinBatch(t *testing.T) {
	b := NewBatcher(openStore(t), nil, nil)
	res := b.Import(context.Background(), Request{Content: "alice|pw1\nalice|pw2", Separator: "|", Mappings: loginPassword})
	if res.Imported != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestImportPurchasedRole(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	b := NewBatcher(st, nil, nil)
	now := time.UnixMilli(1_760_000_000_000)
	b.SetClock(func() time.Time { return now })

	if res := b.Import(ctx, Request{Content: "alice|pw", Separator: "|", Mappings: loginPassword, Role: RolePurchased}); res.Imported != 1 {
		t.Fatalf("result = %+v", res)
	}
	acc, ok, err := st.FindAccountByLogin(ctx, model.AccountKindPurchased, "alice")
	if err != nil || !ok {
		t.Fatalf("purchased account missing: %v", err)
	}
	if acc.UploadedAt == nil || !acc.UploadedAt.Equal(now) || acc.Gender != "" {
		t.Fatalf("purchased account = %+v", acc)
	}

	// Same login under the other kind is not a duplicate.
	if res := b.Import(ctx, Request{Content: "alice|pw", Separator: "|", Mappings: loginPassword}); res.Imported != 1 {
		t.Fatalf("fb import = %+v", res)
	}
}

type failingStore struct {
	*sqlite.Store
	failLogin string
}

func (f failingStore) CreateAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.Login == f.failLogin {
		return model.Account{}, errors.New("disk full")
	}
	return f.Store.CreateAccount(ctx, acc)
}

func TestImportCreateErrorDoesNotAbort(t *testing.T) {
	b := NewBatcher(failingStore{Store: openStore(t), failLogin: "bob"}, nil, nil)
	res := b.Import(context.Background(), Request{Content: "alice|1\nbob|2\ncarol|3", Separator: "|", Mappings: loginPassword})
	if !res.Success || res.Imported != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
}

type panickingStore struct{}

func (panickingStore) FindAccountByLogin(context.Context, model.AccountKind, string) (model.Account, bool, error) {
	panic("boom")
}

func (panickingStore) CreateAccount(context.Context, model.Account) (model.Account, error) {
	return model.Account{}, nil
}

func TestImportRecoversFromPanic(t *testing.T) {
	b := NewBatcher(panickingStore{}, nil, nil)
	res := b.Import(context.Background(), Request{Content: "alice|1", Separator: "|", Mappings: loginPassword})
	if res.Success || res.Imported != 0 || res.Failed != 0 || !strings.Contains(res.Message, "boom") {
		t.Fatalf("result = %+v", res)
	}
}

func TestImportRejectsBadRequest(t *testing.T) {
	b := NewBatcher(openStore(t), nil, nil)
	cases := []Request{
		{Content: "alice|1", Separator: "", Mappings: loginPassword},
		{Content: "alice|1", Separator: "|", Mappings: []FieldMapping{{FieldName: "nickname", Position: 0}}},
	}
	for _, req := range cases {
		if res := b.Import(context.Background(), req); res.Success || res.Message == "" {
			t.Fatalf("request %+v: result = %+v", req, res)
		}
	}
}

func TestImportPublishesProgress(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	b := NewBatcher(openStore(t), bus, nil)
	b.Import(context.Background(), Request{Content: "alice|1\nbob|2", Separator: "|", Mappings: loginPassword})

	deadline := time.After(time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Type != logbus.TypeImportProgress {
				continue
			}
			data := msg.Data.(logbus.ImportProgressEvent)
			if data.Done != 2 || data.Total != 2 || data.Imported != 2 || data.BatchID == "" {
				t.Fatalf("progress = %+v", data)
			}
			return
		case <-deadline:
			t.Fatal("no progress event")
		}
	}
}

// cancellingStore cancels the caller's context after the first insert, the
// way a disconnecting upload client would.
type cancellingStore struct {
	*sqlite.Store
	cancel context.CancelFunc
}

func (c cancellingStore) CreateAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	defer c.cancel()
	if err := ctx.Err(); err != nil {
		return model.Account{}, err
	}
	return c.Store.CreateAccount(ctx, acc)
}

func TestImportCompletesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := openStore(t)
	b := NewBatcher(cancellingStore{Store: st, cancel: cancel}, nil, nil)

	res := b.Import(ctx, Request{Content: "a|1\nb|2\nc|3", Separator: "|", Mappings: loginPassword})
	if !res.Success || res.Imported != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Message != "Import completed: 3 successful, 0 failed" {
		t.Fatalf("message = %q", res.Message)
	}
	for _, login := range []string{"a", "b", "c"} {
		if _, ok, err := st.FindAccountByLogin(context.Background(), model.AccountKindFB, login); err != nil || !ok {
			t.Fatalf("%s not stored: ok=%v err=%v", login, ok, err)
		}
	}
}

func TestImportWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBatcher(openStore(t), nil, nil)
	res := b.Import(ctx, Request{Content: "alice|1\nbob|2", Separator: "|", Mappings: loginPassword})
	if !res.Success || res.Imported != 2 {
		t.Fatalf("result = %+v", res)
	}
}
