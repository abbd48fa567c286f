package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn func(ctx context.Context, userID, role string) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return s.hasRoleFn(ctx, userID, role)
}

func serveAdmin(t *testing.T, store stubAdminStore, role, userID string) *httptest.ResponseRecorder {
	t.Helper()
	handler := RequireAdmin(store, role)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" {
		req = req.WithContext(ContextWithUserID(req.Context(), userID))
	}
	handler.ServeHTTP(rr, req)
	return rr
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		isAdmin  bool
		isSuper  bool
		adminErr error
		hasRole  bool
		want     int
	}{
		{name: "missing user", want: http.StatusUnauthorized},
		{name: "not admin", userID: "u-1", want: http.StatusForbidden},
		{name: "lookup error", userID: "u-1", adminErr: errors.New("db down"), want: http.StatusInternalServerError},
		{name: "super admin skips roles", userID: "u-1", isAdmin: true, isSuper: true, want: http.StatusOK},
		{name: "missing role", userID: "u-1", isAdmin: true, want: http.StatusForbidden},
		{name: "with role", userID: "u-1", isAdmin: true, hasRole: true, want: http.StatusOK},
	}
	for _, tc := range cases {
		store := stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) {
				return tc.isAdmin, tc.isSuper, tc.adminErr
			},
			hasRoleFn: func(_ context.Context, _ string, role string) (bool, error) {
				if role != RoleSettleRounds {
					t.Fatalf("%s: unexpected role %s", tc.name, role)
				}
				return tc.hasRole, nil
			},
		}
		rr := serveAdmin(t, store, RoleSettleRounds, tc.userID)
		if rr.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rr.Code)
		}
	}
}

func TestRequireAdminWritesJSONError(t *testing.T) {
	store := stubAdminStore{
		isAdminFn: func(context.Context, string) (bool, bool, error) { return false, false, nil },
		hasRoleFn: func(context.Context, string, string) (bool, error) { return false, nil },
	}
	rr := serveAdmin(t, store, RoleEditConfig, "u-1")
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "FORBIDDEN" {
		t.Fatalf("unexpected code: %s", body.Error.Code)
	}
}
