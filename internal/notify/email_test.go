package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"account_sync/internal/model"
)

type fakeSettings struct {
	settings model.EmailSettings
	ok       bool
}

func (f fakeSettings) GetEmailSettings(context.Context) (model.EmailSettings, bool, error) {
	return f.settings, f.ok, nil
}

type recorder struct {
	mu      sync.Mutex
	batches [][]ImportCompletedEvent
	sent    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{sent: make(chan struct{}, 16)}
}

func (r *recorder) send(_ context.Context, _ model.EmailSettings, events []ImportCompletedEvent) error {
	r.mu.Lock()
	r.batches = append(r.batches, events)
	r.mu.Unlock()
	r.sent <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no mail sent")
	}
}

var enabled = fakeSettings{
	settings: model.EmailSettings{Enabled: true, Email: "ops@example.com", AuthCode: "secret"},
	ok:       true,
}

func TestEmailNotifierSendsImmediately(t *testing.T) {
	rec := newRecorder()
	n := newEmailNotifier(enabled, nil, 0, rec.send)
	defer n.Close(context.Background())

	n.NotifyImportCompleted(context.Background(), ImportCompletedEvent{BatchID: "b1", Imported: 2, Failed: 1})
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 1 || rec.batches[0][0].BatchID != "b1" {
		t.Fatalf("batches = %+v", rec.batches)
	}
}

func TestEmailNotifierBatchesWithinWindow(t *testing.T) {
	rec := newRecorder()
	n := newEmailNotifier(enabled, nil, 50*time.Millisecond, rec.send)
	defer n.Close(context.Background())

	for _, id := range []string{"b1", "b2", "b3"} {
		n.NotifyImportCompleted(context.Background(), ImportCompletedEvent{BatchID: id})
	}
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 1 || len(rec.batches[0]) != 3 {
		t.Fatalf("batches = %+v", rec.batches)
	}
}

func TestEmailNotifierFlushesOnClose(t *testing.T) {
	rec := newRecorder()
	n := newEmailNotifier(enabled, nil, time.Hour, rec.send)
	n.NotifyImportCompleted(context.Background(), ImportCompletedEvent{BatchID: "b1"})
	time.Sleep(20 * time.Millisecond)

	if err := n.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)
}

func TestEmailNotifierDisabled(t *testing.T) {
	rec := newRecorder()
	n := newEmailNotifier(fakeSettings{settings: model.EmailSettings{Email: "ops@example.com"}, ok: true}, nil, 0, rec.send)
	n.NotifyImportCompleted(context.Background(), ImportCompletedEvent{BatchID: "b1"})
	if err := n.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.batches) != 0 {
		t.Fatalf("mail sent while disabled: %+v", rec.batches)
	}
}

func TestValidateEmailSettings(t *testing.T) {
	cases := []struct {
		name string
		in   model.EmailSettings
		ok   bool
	}{
		{"valid", model.EmailSettings{Email: "a@b.com", AuthCode: "x"}, true},
		{"missing email", model.EmailSettings{AuthCode: "x"}, false},
		{"bad email", model.EmailSettings{Email: "nope", AuthCode: "x"}, false},
		{"missing auth", model.EmailSettings{Email: "a@b.com"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateEmailSettings(tc.in)
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestBuildSummaryEmailBody(t *testing.T) {
	events := []ImportCompletedEvent{
		{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local).UnixMilli(), Kind: "fb", Source: "dump.txt", Imported: 10, Failed: 2},
		{Kind: "purchased", Imported: 5},
	}
	html, text, err := buildSummaryEmailBody(events)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "2 batch(es), 15 imported, 2 failed") {
		t.Fatalf("text body = %q", text)
	}
	if !strings.Contains(text, "2026-01-02 03:04:05 | fb | dump.txt") {
		t.Fatalf("text body missing row: %q", text)
	}
	if !strings.Contains(html, "dump.txt") {
		t.Fatal("html body missing source")
	}
	if got := buildSummarySubject(events); got != "Account imports finished (2 batches, 15 imported)" {
		t.Fatalf("subject = %q", got)
	}
}

func TestSMTPConfigForEmail(t *testing.T) {
	host, port, ssl, err := smtpConfigForEmail("x@gmail.com")
	if err != nil || host != "smtp.gmail.com" || port != 587 || ssl {
		t.Fatalf("gmail = %s %d %v %v", host, port, ssl, err)
	}
	if _, _, _, err := smtpConfigForEmail("broken"); err == nil {
		t.Fatal("expected error for address without domain")
	}
}
