package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"account_sync/internal/logbus"
	"account_sync/internal/model"
)

type SettingsStore interface {
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
}

// SendFunc delivers one summary mail. SendImportSummaryEmail is the default.
type SendFunc func(ctx context.Context, settings model.EmailSettings, events []ImportCompletedEvent) error

// EmailNotifier queues import reports and mails them in batches. Reports that
// arrive within summaryWindow of each other share one mail.
type EmailNotifier struct {
	store SettingsStore
	bus   *logbus.Bus
	send  SendFunc

	mu     sync.Mutex
	queue  chan ImportCompletedEvent
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup

	summaryWindow time.Duration
	maxBatch      int
}

func NewEmailNotifier(store SettingsStore, bus *logbus.Bus, summaryWindow time.Duration) *EmailNotifier {
	return newEmailNotifier(store, bus, summaryWindow, SendImportSummaryEmail)
}

func newEmailNotifier(store SettingsStore, bus *logbus.Bus, summaryWindow time.Duration, send SendFunc) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		store:         store,
		bus:           bus,
		send:          send,
		queue:         make(chan ImportCompletedEvent, 200),
		ctx:           ctx,
		cancel:        cancel,
		summaryWindow: summaryWindow,
		maxBatch:      20,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyImportCompleted(_ context.Context, evt ImportCompletedEvent) {
	select {
	case n.queue <- evt:
	default:
		n.log("warn", "import report dropped: mail queue full", map[string]any{
			"batchId": evt.BatchID,
		})
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	var (
		pending []ImportCompletedEvent
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
		timerCh = nil
	}

	resetTimer := func() {
		if timer == nil {
			timer = time.NewTimer(n.summaryWindow)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(n.summaryWindow)
	}

	flush := func(reason string) {
		if len(pending) == 0 {
			stopTimer()
			return
		}
		events := append([]ImportCompletedEvent(nil), pending...)
		pending = pending[:0]
		stopTimer()
		n.handleBatch(reason, events)
	}

	for {
		select {
		case <-n.ctx.Done():
			flush("shutdown")
			return
		case evt := <-n.queue:
			pending = append(pending, evt)
			if n.maxBatch > 0 && len(pending) >= n.maxBatch {
				flush("max")
				continue
			}
			if n.summaryWindow <= 0 {
				flush("immediate")
				continue
			}
			resetTimer()
		case <-timerCh:
			flush("idle")
		}
	}
}

func (n *EmailNotifier) handleBatch(reason string, events []ImportCompletedEvent) {
	if n.store == nil {
		return
	}

	// n.ctx is already cancelled on shutdown flush.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	settings, ok, err := n.store.GetEmailSettings(ctx)
	if err != nil {
		n.log("warn", "failed to read email settings", map[string]any{"error": err.Error()})
		return
	}
	if !ok || !settings.Enabled {
		n.log("debug", "email notifications disabled", map[string]any{
			"count":  len(events),
			"reason": reason,
		})
		return
	}
	if err := validateEmailSettings(settings); err != nil {
		n.log("warn", "invalid email settings", map[string]any{"error": err.Error()})
		return
	}

	if err := n.send(ctx, settings, events); err != nil {
		n.log("warn", "import report email failed", map[string]any{
			"error":  err.Error(),
			"count":  len(events),
			"reason": reason,
		})
		return
	}
	n.log("info", "import report email sent", map[string]any{
		"count":  len(events),
		"reason": reason,
		"to":     strings.TrimSpace(settings.Email),
	})
}

func (n *EmailNotifier) log(level, msg string, fields map[string]any) {
	if n.bus != nil {
		n.bus.Log(level, msg, fields)
	}
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendImportSummaryEmail(ctx context.Context, settings model.EmailSettings, events []ImportCompletedEvent) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events")
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryEmailBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "Account Sync"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", buildSummarySubject(events))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || strings.HasSuffix(domain, ".outlook.com") ||
		domain == "hotmail.com" || strings.HasSuffix(domain, ".hotmail.com") ||
		domain == "live.com" || strings.HasSuffix(domain, ".live.com"):
		return "smtp.office365.com", 587, false, nil
	case domain == "ukr.net":
		return "smtp.ukr.net", 465, true, nil
	case domain == "i.ua":
		return "smtp.i.ua", 465, true, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(events []ImportCompletedEvent) string {
	imported := 0
	for _, evt := range events {
		imported += evt.Imported
	}
	if len(events) == 1 {
		return fmt.Sprintf("Account import finished: %d imported", imported)
	}
	return fmt.Sprintf("Account imports finished (%d batches, %d imported)", len(events), imported)
}

var emailSummaryHTMLTpl = template.Must(template.New("email-summary").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>Account import report</title>
  </head>
  <body style="margin:0;padding:0;background:#f6f8fb;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;">
    <div style="max-width:720px;margin:0 auto;padding:24px;">
      <div style="background:#ffffff;border:1px solid #e6e8ef;border-radius:14px;overflow:hidden;">
        <div style="padding:18px 22px;background:#1f2937;color:#ffffff;font-size:16px;font-weight:700;">Account import report</div>
        <div style="padding:22px;">
          <div style="font-size:14px;color:#111827;">
            {{ .Total }} batch(es), {{ .Imported }} imported, {{ .Failed }} failed
          </div>
          <table role="presentation" cellspacing="0" cellpadding="0" border="0" style="margin-top:12px;width:100%;border-collapse:collapse;">
            <thead>
              <tr style="background:#fafbff;">
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Time</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Kind</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Source</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Imported</th>
                <th style="padding:10px 12px;text-align:left;font-size:12px;color:#6b7280;">Failed</th>
              </tr>
            </thead>
            <tbody>
              {{ range .Rows }}
              <tr>
                <td style="padding:10px 12px;font-size:12px;color:#111827;">{{ .At }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;">{{ .Kind }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;">{{ .Source }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;">{{ .Imported }}</td>
                <td style="padding:10px 12px;font-size:12px;color:#111827;">{{ .Failed }}</td>
              </tr>
              {{ end }}
            </tbody>
          </table>
        </div>
      </div>
    </div>
  </body>
</html>
`))

type summaryRow struct {
	At       string
	Kind     string
	Source   string
	Imported int
	Failed   int
}

func buildSummaryEmailBody(events []ImportCompletedEvent) (htmlBody string, textBody string, err error) {
	if len(events) == 0 {
		return "", "", errors.New("no events")
	}

	rows := make([]summaryRow, 0, len(events))
	imported, failed := 0, 0
	for _, evt := range events {
		at := time.Now()
		if evt.At > 0 {
			at = time.UnixMilli(evt.At)
		}
		source := strings.TrimSpace(evt.Source)
		if source == "" {
			source = "-"
		}
		rows = append(rows, summaryRow{
			At:       at.Format("2006-01-02 15:04:05"),
			Kind:     evt.Kind,
			Source:   source,
			Imported: evt.Imported,
			Failed:   evt.Failed,
		})
		imported += evt.Imported
		failed += evt.Failed
	}

	data := struct {
		Total    int
		Imported int
		Failed   int
		Rows     []summaryRow
	}{
		Total:    len(events),
		Imported: imported,
		Failed:   failed,
		Rows:     rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	fmt.Fprintf(text, "Account import report\n%d batch(es), %d imported, %d failed\n", len(events), imported, failed)
	for _, row := range rows {
		fmt.Fprintf(text, "- %s | %s | %s | imported %d | failed %d\n", row.At, row.Kind, row.Source, row.Imported, row.Failed)
	}
	return buf.String(), text.String(), nil
}
