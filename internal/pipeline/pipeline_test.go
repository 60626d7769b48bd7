package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wmsreceipt/internal/browser"
	"wmsreceipt/internal/config"
	apperrors "wmsreceipt/internal/errors"
	"wmsreceipt/internal/events"
	"wmsreceipt/internal/mail"
	"wmsreceipt/internal/receipt"
	"wmsreceipt/internal/wms"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	receiptsURL = "https://wms.test/admin/receipts"
	resultsURL  = "https://wms.test/admin/receipts?keyword=RC-1001"
	detailURL   = "https://wms.test/admin/receipts/8"
	loginKey    = "login"
)

const loginPage = `<html><head><title>WMS 登入</title></head><body>
<form>
  <input id="username" type="text">
  <input id="password" type="password">
  <button type="submit">登入</button>
</form></body></html>`

const listPage = `<html><body>
<input class="form-control" placeholder="搜尋單號">
<table class="table"><tbody></tbody></table>
</body></html>`

const resultsPage = `<html><body>
<input class="form-control" placeholder="搜尋單號">
<table class="table"><tbody>
  <tr><td>RC-1001</td><td><a href="/admin/receipts/8">查看</a></td></tr>
</tbody></table>
</body></html>`

const detailPage = `<html><body>
<table class="table table-striped">
  <thead><tr><th>品號</th><th>數量</th></tr></thead>
  <tbody>
    <tr><td>SKU-A</td><td>3</td></tr>
    <tr><td>SKU-B</td><td>1</td></tr>
  </tbody>
</table>
</body></html>`

// portal returns a fixture that serves the login form at the receipts URL
// until the submit button is clicked.
func portal(detail string) *browser.FixturePage {
	page := browser.NewFixturePage(map[string]string{
		loginKey:    loginPage,
		receiptsURL: listPage,
		resultsURL:  resultsPage,
		detailURL:   detail,
	})

	var mu sync.Mutex
	loggedIn := false
	page.OnClickFunc = func(browser.Locator) string {
		mu.Lock()
		loggedIn = true
		mu.Unlock()
		return ""
	}
	page.Resolve = func(u string) string {
		mu.Lock()
		defer mu.Unlock()
		if u == receiptsURL && !loggedIn {
			return loginKey
		}
		return u
	}
	page.OnSubmit = func(_ browser.Locator, value string) string {
		return receiptsURL + "?keyword=" + value
	}
	return page
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ReceiptsURL:        receiptsURL,
		Username:           "operator",
		Password:           "secret",
		EmailUser:          "sender@example.com",
		EmailPass:          "app-secret",
		EmailTo:            "ops@example.com",
		SMTPHost:           "smtp.example.com",
		SMTPPort:           587,
		OutputDir:          t.TempDir(),
		DiagnosticsDir:     t.TempDir(),
		NavigationTimeout:  time.Second,
		ProbeTimeout:       50 * time.Millisecond,
		SearchProbeTimeout: 50 * time.Millisecond,
		TableProbeTimeout:  50 * time.Millisecond,
		ResultTimeout:      50 * time.Millisecond,
	}
}

func opener(page browser.Page) (Opener, *int) {
	calls := 0
	return func(context.Context, *config.Config) (browser.Page, error) {
		calls++
		return page, nil
	}, &calls
}

type recordingSender struct {
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg mail.Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestRunWritesCSV(t *testing.T) {
	cfg := testConfig(t)
	page := portal(detailPage)
	open, _ := opener(page)
	rec := events.NewRecorder()
	var out bytes.Buffer

	res, err := Run(context.Background(), cfg, " RC-1001 ", Deps{Open: open, Sink: rec, Out: &out})
	require.NoError(t, err)

	assert.Equal(t, "RC-1001", res.ReceiptNo)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, detailURL, res.DetailURL)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "wms_RC-1001.csv"), res.CSVPath)
	assert.Equal(t, filepath.Join(cfg.DiagnosticsDir, wms.DetailScreenshot), res.Screenshot)
	assert.Equal(t, 3, res.Rows)
	assert.False(t, res.Delivered)

	want := []receipt.Record{
		receipt.NewRecord("RC-1001", "SKU-A", "3"),
		receipt.NewRecord("RC-1001", "SKU-B", "1"),
	}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(res.CSVPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(receipt.Header[:], ","), lines[0])
	assert.Equal(t, strings.Join(want[0].Strings(), ","), lines[1])

	assert.True(t, page.Closed())
	assert.Equal(t, []string{receiptsURL, receiptsURL, resultsURL, detailURL}, page.Navigations())

	skipped := rec.OfKind(events.KindDelivery)
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].Detail, "skipped")
	assert.Len(t, rec.OfKind(events.KindArtifact), 1)

	assert.Contains(t, out.String(), "SKU-A")
}

func TestRunDelivers(t *testing.T) {
	cfg := testConfig(t)
	cfg.DeliveryEnabled = true
	cfg.WriteXLSX = true
	open, _ := opener(portal(detailPage))
	sender := &recordingSender{}

	res, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Mailer: sender, Sink: events.Discard})
	require.NoError(t, err)

	assert.True(t, res.Delivered)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ops@example.com", msg.To)
	assert.Contains(t, msg.Subject, "RC-1001")
	assert.Equal(t, []string{res.CSVPath, res.XLSXPath}, msg.Attachments)
	assert.FileExists(t, res.XLSXPath)
}

func TestRunDeliveryFailureKeepsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.DeliveryEnabled = true
	open, _ := opener(portal(detailPage))
	sender := &recordingSender{err: errors.New("535 authentication failed")}

	res, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Mailer: sender, Sink: events.Discard})
	require.Error(t, err)
	assert.True(t, apperrors.IsDelivery(err))

	require.NotNil(t, res)
	assert.False(t, res.Delivered)
	assert.FileExists(t, res.CSVPath)
}

func TestRunHeaderOnlyTable(t *testing.T) {
	cfg := testConfig(t)
	detail := `<html><body><table class="table">
<tr><th>品號</th><th>數量</th></tr>
<tr><td></td><td>-</td></tr>
</table></body></html>`
	open, _ := opener(portal(detail))

	res, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Sink: events.Discard})
	require.NoError(t, err)
	assert.Empty(t, res.Records)

	data, err := os.ReadFile(res.CSVPath)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(receipt.Header[:], ",")+"\n", string(data))
}

func TestRunFailsBeforeOpeningBrowser(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		receipt string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "empty receipt",
			mutate:  func(*config.Config) {},
			receipt: "  ",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoReceipt)
			},
		},
		{
			name: "missing credentials",
			mutate: func(c *config.Config) {
				c.Password = ""
				c.EmailTo = ""
			},
			receipt: "RC-1001",
			check: func(t *testing.T, err error) {
				var missing *apperrors.MissingConfigurationError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, []string{"WMS_PASS", "EMAIL_TO"}, missing.Names)
			},
		},
		{
			name: "unreadable selector profile",
			mutate: func(c *config.Config) {
				c.SelectorsFile = filepath.Join(c.OutputDir, "missing.yaml")
			},
			receipt: "RC-1001",
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			open, calls := opener(portal(detailPage))

			_, err := Run(context.Background(), cfg, tt.receipt, Deps{Open: open, Sink: events.Discard})
			tt.check(t, err)
			assert.Zero(t, *calls)

			entries, readErr := os.ReadDir(cfg.OutputDir)
			require.NoError(t, readErr)
			assert.Empty(t, entries)
		})
	}
}

func TestRunLoginFailureCapturesScreenshot(t *testing.T) {
	cfg := testConfig(t)
	page := browser.NewFixturePage(map[string]string{
		receiptsURL: `<html><body><p>Maintenance</p></body></html>`,
	})
	open, _ := opener(page)

	_, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Sink: events.Discard})

	var loginErr *apperrors.LoginElementNotFoundError
	require.ErrorAs(t, err, &loginErr)
	assert.Equal(t, apperrors.RoleUsername, loginErr.Role)
	assert.FileExists(t, filepath.Join(cfg.DiagnosticsDir, wms.LoginDebugScreenshot))
	assert.True(t, page.Closed())

	_, statErr := os.Stat(filepath.Join(cfg.OutputDir, "wms_RC-1001.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunNoTable(t *testing.T) {
	cfg := testConfig(t)
	open, _ := opener(portal(`<html><body><p>no rows</p></body></html>`))

	_, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Sink: events.Discard})
	assert.True(t, apperrors.IsNoTableFound(err))
}

func TestRunLogsSelectorProfileThroughRunLogger(t *testing.T) {
	cfg := testConfig(t)
	cfg.SelectorsFile = filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(cfg.SelectorsFile, []byte("username:\n  - \"#username\"\n"), 0o644))
	open, _ := opener(portal(detailPage))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	res, err := Run(context.Background(), cfg, "RC-1001", Deps{Open: open, Sink: events.Discard, Logger: logger})
	require.NoError(t, err)

	for _, line := range strings.Split(logs.String(), "\n") {
		if strings.Contains(line, "Selector profile") {
			assert.Contains(t, line, "profile="+cfg.SelectorsFile)
			assert.Contains(t, line, "run_id="+res.RunID)
			return
		}
	}
	t.Fatalf("selector profile not logged:\n%s", logs.String())
}
