package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emersion/go-vcard"

	"github.com/starford/cardsync/internal/contactservice"
	"github.com/starford/cardsync/internal/syncer"
	"github.com/starford/cardsync/internal/testutil"
)

type fetchFunc func(ctx context.Context, creds syncer.Credentials) ([]vcard.Card, error)

func (f fetchFunc) FetchContacts(ctx context.Context, creds syncer.Credentials) ([]vcard.Card, error) {
	return f(ctx, creds)
}

func janeCard() vcard.Card {
	c := vcard.Card{}
	c.SetValue(vcard.FieldUID, "ABCD1234-xxxx")
	c.SetValue(vcard.FieldFormattedName, "Jane Doe")
	c.SetValue(vcard.FieldName, "Doe;Jane;;;")
	c.AddValue(vcard.FieldEmail, "jane@x.com")
	return c
}

func okFetcher() syncer.Fetcher {
	return fetchFunc(func(context.Context, syncer.Credentials) ([]vcard.Card, error) {
		return []vcard.Card{janeCard()}, nil
	})
}

type envOptions struct {
	authEnabled bool
	token       string
	fetcher     syncer.Fetcher
	password    string
	sse         http.Handler
}

// testEnv sets up a temp vault, ledger, syncer, service and router.
func testEnv(t *testing.T, o envOptions) http.Handler {
	t.Helper()
	if o.fetcher == nil {
		o.fetcher = okFetcher()
	}
	if o.password == "" {
		o.password = "app-pass"
	}
	_, store := testutil.TestVault(t)
	db := testutil.TestLedger(t)
	s := syncer.New(store, o.fetcher,
		syncer.Options{ICloudUserName: "jane@icloud.com", ICloudPassword: o.password, PeoplePath: "people"},
		syncer.WithRecorder(db),
		syncer.WithNotifier(syncer.Notifiers{}),
		syncer.WithLogger(slog.New(slog.DiscardHandler)))
	svc := contactservice.NewService(s, db, store)
	return NewRouter(svc, o.authEnabled, o.token, o.sse)
}

func do(router http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSyncThenQuery(t *testing.T) {
	router := testEnv(t, envOptions{})

	w := do(router, http.MethodPost, "/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", w.Code, w.Body.String())
	}
	var report syncer.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || len(report.Outcomes) != 1 || report.Outcomes[0].Path != "people/Jane Doe.md" {
		t.Errorf("report = %+v", report)
	}

	w = do(router, http.MethodGet, "/contacts", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list ContactListResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Contacts[0].UID != "ABCD1234-xxxx" {
		t.Errorf("list = %+v", list)
	}

	w = do(router, http.MethodGet, "/contacts/ABCD1234-xxxx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail ContactDetail
	if err := json.NewDecoder(w.Body).Decode(&detail); err != nil {
		t.Fatal(err)
	}
	if detail.Path != "people/Jane Doe.md" || detail.Stale || detail.Fields["Name"] != "Jane Doe" {
		t.Errorf("detail = %+v", detail)
	}

	w = do(router, http.MethodGet, "/status", "")
	var st StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Running || st.LastRun == nil || st.LastRun.Created != 1 {
		t.Errorf("status = %+v", st)
	}

	w = do(router, http.MethodGet, "/notes", "")
	var notes NoteListResponse
	if err := json.NewDecoder(w.Body).Decode(&notes); err != nil {
		t.Fatal(err)
	}
	if len(notes.Notes) != 1 || notes.Notes[0].Path != "people/Jane Doe.md" {
		t.Errorf("notes = %+v", notes)
	}

	w = do(router, http.MethodGet, "/runs?limit=5", "")
	var runs RunListResponse
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatal(err)
	}
	if len(runs.Runs) != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSync_Conflict(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	router := testEnv(t, envOptions{fetcher: fetchFunc(func(context.Context, syncer.Credentials) ([]vcard.Card, error) {
		close(entered)
		<-release
		return nil, nil
	})})

	done := make(chan int, 1)
	go func() { done <- do(router, http.MethodPost, "/sync", "").Code }()
	<-entered

	if w := do(router, http.MethodPost, "/sync", ""); w.Code != http.StatusConflict {
		t.Errorf("concurrent sync = %d, want 409", w.Code)
	}
	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first sync = %d, want 200", code)
	}
}

func TestSync_MissingCredentials(t *testing.T) {
	router := testEnv(t, envOptions{password: " "})
	w := do(router, http.MethodPost, "/sync", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("sync without credentials = %d, want 422", w.Code)
	}
}

func TestSync_TransportFailure(t *testing.T) {
	router := testEnv(t, envOptions{fetcher: fetchFunc(func(context.Context, syncer.Credentials) ([]vcard.Card, error) {
		return nil, errors.New("401")
	})})
	w := do(router, http.MethodPost, "/sync", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("sync with failing fetch = %d, want 502", w.Code)
	}
	var body SyncErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error == "" || body.Report == nil {
		t.Errorf("body = %+v", body)
	}
}

func TestGetContact_NotFound(t *testing.T) {
	router := testEnv(t, envOptions{})
	if w := do(router, http.MethodGet, "/contacts/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing contact = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "secret123"})
	if w := do(router, http.MethodGet, "/status", "secret123"); w.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "secret123"})
	if w := do(router, http.MethodPost, "/sync", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "secret123"})
	if w := do(router, http.MethodGet, "/contacts", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := testEnv(t, envOptions{})
	if w := do(router, http.MethodGet, "/contacts", ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "secret", sse: blockingSSE})
	if w := do(router, http.MethodGet, "/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "tok", sse: blockingSSE})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "tok", sse: blockingSSE})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("event stream with query token should not 401")
	}
}

func TestAuthMiddleware_QueryTokenOnlyForEventStream(t *testing.T) {
	router := testEnv(t, envOptions{authEnabled: true, token: "tok"})
	if w := do(router, http.MethodGet, "/status?access_token=tok", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("query token on JSON route = %d, want 401", w.Code)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		target string
		want   int
	}{
		{"/runs?limit=5", 5},
		{"/runs", 0},
		{"/runs?limit=-3", 0},
		{"/runs?limit=abc", 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.target, nil)
		if got := queryInt(req, "limit"); got != tt.want {
			t.Errorf("queryInt(%q) = %d, want %d", tt.target, got, tt.want)
		}
	}
}
