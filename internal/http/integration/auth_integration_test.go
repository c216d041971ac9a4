package integration_test

import (
	"context"
	"net/http"
	"testing"
)

func TestAuthIntegration_Register_Login_Refresh_Logout(t *testing.T) {
	router := setupRouter(t)

	sam := register(t, router, "Sam Doe", "sam@example.com")

	// duplicate registration keeps the first account intact
	var hashBefore string
	if err := testPool.QueryRow(context.Background(), `SELECT password_hash FROM users WHERE id = $1`, sam.UserID).Scan(&hashBefore); err != nil {
		t.Fatalf("load hash: %v", err)
	}

	w, env := doRequest(t, router, http.MethodPost, "/auth/register", "",
		`{"name":"Impostor","email":"SAM@example.com","password":"another-password"}`)
	expectStatus(t, w, http.StatusConflict)
	if env.Message != "User already exists" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	var hashAfter string
	if err := testPool.QueryRow(context.Background(), `SELECT password_hash FROM users WHERE id = $1`, sam.UserID).Scan(&hashAfter); err != nil {
		t.Fatalf("load hash: %v", err)
	}
	if hashAfter != hashBefore {
		t.Fatalf("duplicate registration changed the stored hash")
	}

	// wrong password and unknown email look the same
	for _, body := range []string{
		`{"email":"sam@example.com","password":"wrong-password"}`,
		`{"email":"nobody@example.com","password":"password123"}`,
	} {
		w, env = doRequest(t, router, http.MethodPost, "/auth/login", "", body)
		expectStatus(t, w, http.StatusUnauthorized)
		if env.Message != "Invalid credentials" {
			t.Fatalf("unexpected message %q", env.Message)
		}
	}

	w, _ = doRequest(t, router, http.MethodPost, "/auth/login", "", `{"email":"sam@example.com","password":"password123"}`)
	expectStatus(t, w, http.StatusOK)

	w, _ = doRequest(t, router, http.MethodGet, "/auth/me", sam.AccessToken, "")
	expectStatus(t, w, http.StatusOK)

	w, env = doRequest(t, router, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+sam.RefreshToken+`"}`)
	expectStatus(t, w, http.StatusOK)
	if mustData[map[string]string](t, env)["accessToken"] == "" {
		t.Fatalf("refresh returned no access token")
	}

	w, _ = doRequest(t, router, http.MethodPost, "/auth/logout", "", `{"refreshToken":"`+sam.RefreshToken+`"}`)
	expectStatus(t, w, http.StatusOK)

	w, _ = doRequest(t, router, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+sam.RefreshToken+`"}`)
	expectStatus(t, w, http.StatusUnauthorized)

	// logout is idempotent and needs no bearer token
	w, _ = doRequest(t, router, http.MethodPost, "/auth/logout", "", `{"refreshToken":"`+sam.RefreshToken+`"}`)
	expectStatus(t, w, http.StatusOK)

	var sessions int
	if err := testPool.QueryRow(context.Background(), `SELECT count(*) FROM refresh_tokens WHERE user_id = $1`, sam.UserID).Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("want only the login session left, got %d", sessions)
	}
}

func TestAuthIntegration_ProtectedRoutesNeedToken(t *testing.T) {
	router := setupRouter(t)

	for _, path := range []string{"/auth/me", "/projects", "/notifications", "/notifications/unread-count"} {
		w, env := doRequest(t, router, http.MethodGet, path, "", "")
		expectStatus(t, w, http.StatusUnauthorized)
		if env.Error.Code != "unauthorized" {
			t.Fatalf("%s: unexpected code %q", path, env.Error.Code)
		}
	}
}
