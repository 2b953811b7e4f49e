package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/log"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

func TestNew_RequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{CredentialsJSON: "{}"})
	if err == nil || !strings.Contains(err.Error(), "GOOGLE_SPREADSHEET_ID") {
		t.Fatalf("expected missing spreadsheet error, got %v", err)
	}
}

func TestCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	t.Run("inline json wins", func(t *testing.T) {
		got, err := credentials(Config{CredentialsJSON: ` {"type":"service_account"} `, CredentialsFile: "/nope"})
		if err != nil || string(got) != `{"type":"service_account"}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sa.json")
		if err := os.WriteFile(path, []byte(`{"k":1}`), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := credentials(Config{CredentialsFile: path})
		if err != nil || string(got) != `{"k":1}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("standard env fallback", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "adc.json")
		if err := os.WriteFile(path, []byte(`{"adc":true}`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
		got, err := credentials(Config{})
		if err != nil || string(got) != `{"adc":true}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := credentials(Config{}); err == nil {
			t.Fatal("expected error without credentials")
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := credentials(Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})
		if err == nil || !strings.Contains(err.Error(), "read service account file") {
			t.Fatalf("expected read error, got %v", err)
		}
	})
}

func TestAppendTransaction_WritesRawValues(t *testing.T) {
	var (
		inputOption string
		written     gsheet.ValueRange
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"values":[["Código"]]}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
			inputOption = r.URL.Query().Get("valueInputOption")
			if err := json.NewDecoder(r.Body).Decode(&written); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Lancamentos!A2:E2"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	c := &Client{svc: svc, spreadsheetID: "sheet", sheet: "Lancamentos", loc: time.UTC, logger: log.Discard()}

	tx := core.Transaction{
		ShortID:   "01234",
		UserID:    3,
		Amount:    core.Money{Cents: 990},
		Category:  "=1+1",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	ref, err := c.AppendTransaction(context.Background(), tx)
	if err != nil {
		t.Fatal(err)
	}
	if ref != "Lancamentos!A2:E2" {
		t.Errorf("ref = %q", ref)
	}
	if inputOption != "RAW" {
		t.Errorf("valueInputOption = %q, want RAW", inputOption)
	}
	if len(written.Values) != 1 || len(written.Values[0]) != 5 {
		t.Fatalf("written = %#v", written.Values)
	}
	if got := written.Values[0][0]; got != "01234" {
		t.Errorf("short id cell = %#v", got)
	}
	if got := written.Values[0][4]; got != "=1+1" {
		t.Errorf("category cell = %#v", got)
	}
}
