package httpapi

import (
	"net/http"
	"testing"
	"time"

	"stockroom.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc  ", "abc", true},
		{"", "", false},
		{"Basic abc", "", false},
		{"Bearer ", "", false},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("extractBearerToken(%q)=%q,%v want %q", tc.header, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("extractBearerToken(%q) should fail", tc.header)
		}
	}
}

func TestDeactivationRevokesExistingToken(t *testing.T) {
	c := newTestAPI(t)
	admin := c.login(adminEmail, adminPassword)
	userID, user := c.createUser(admin, "leaver@example.com")

	resp := c.do(http.MethodGet, "/v1/catalogs", nil, user)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/users/"+userID+"/deactivate", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = c.do(http.MethodGet, "/v1/catalogs", nil, user)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[errorResponse](t, resp)
	details, _ := body.Details.(map[string]any)
	if details["reason"] != "inactive_principal" {
		t.Fatalf("unexpected denial: %+v", body)
	}

	resp = c.do(http.MethodPost, "/v1/auth/token", tokenRequest{Email: "leaver@example.com", Password: "user-password"}, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestTokenForUnknownUserIsRejected(t *testing.T) {
	c := newTestAPI(t)
	issuer, err := auth.NewTokenIssuer("test-secret", "stockroom-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	ghost, _, err := issuer.Issue(auth.Principal{ID: "01GHOST", Role: auth.RoleAdmin, IsActive: true})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	resp := c.do(http.MethodGet, "/v1/me", nil, ghost)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	forged, err := auth.NewTokenIssuer("other-secret", "stockroom-test", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	tok, _, err := forged.Issue(auth.Principal{ID: "01GHOST", Role: auth.RoleAdmin, IsActive: true})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	resp = c.do(http.MethodGet, "/v1/me", nil, tok)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}
