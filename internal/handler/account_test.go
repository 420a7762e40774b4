package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aivideopro/aivideopro/internal/handler/dto"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/service"
)

type fakeAccounts struct {
	account   *model.AccountResponse
	err       error
	entries   []*model.CreditEntry
	lastLimit int
}

func (f *fakeAccounts) GetAccount(ctx context.Context, userID string) (*model.AccountResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

func (f *fakeAccounts) ListLedger(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error) {
	f.lastLimit = limit
	return f.entries, nil
}

func TestAccountHandler_Me(t *testing.T) {
	accounts := &fakeAccounts{account: &model.AccountResponse{UserID: testUserID, Email: "a@example.com", Credits: 4}}
	h := NewAccountHandler(accounts, discardLogger())

	rec := httptest.NewRecorder()
	h.Me(rec, newRequest(http.MethodGet, "/api/v1/me", "", testAuth()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp model.AccountResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Credits != 4 || resp.Email != "a@example.com" {
		t.Errorf("unexpected account: %+v", resp)
	}
}

func TestAccountHandler_Me_UserGone(t *testing.T) {
	h := NewAccountHandler(&fakeAccounts{err: service.ErrUserNotFound}, discardLogger())

	rec := httptest.NewRecorder()
	h.Me(rec, newRequest(http.MethodGet, "/api/v1/me", "", testAuth()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAccountHandler_Me_Unauthenticated(t *testing.T) {
	h := NewAccountHandler(&fakeAccounts{}, discardLogger())

	rec := httptest.NewRecorder()
	h.Me(rec, newRequest(http.MethodGet, "/api/v1/me", "", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := decodeNestedError(t, rec); code != "UNAUTHORIZED" {
		t.Errorf("code = %q", code)
	}
}

func TestAccountHandler_Ledger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{name: "service default", query: "", wantCode: http.StatusOK, wantLimit: 0},
		{name: "explicit limit", query: "?limit=10", wantCode: http.StatusOK, wantLimit: 10},
		{name: "limit out of range", query: "?limit=500", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			accounts := &fakeAccounts{}
			h := NewAccountHandler(accounts, discardLogger())
			rec := httptest.NewRecorder()
			h.Ledger(rec, newRequest(http.MethodGet, "/api/v1/me/credits/ledger"+tt.query, "", testAuth()))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if accounts.lastLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", accounts.lastLimit, tt.wantLimit)
			}

			var resp dto.LedgerResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Entries == nil {
				t.Error("entries should be an empty list, not null")
			}
		})
	}
}
