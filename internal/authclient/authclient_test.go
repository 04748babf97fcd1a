package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/miicoin/signalsync/internal/poller"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend mimics the session routes: login sets a cookie that the
// profile routes require.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(r *http.Request) bool {
		c, err := r.Cookie("session")
		return err == nil && c.Value == "abc"
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "Email ou mot de passe incorrect"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"user":   map[string]any{"id": 7, "email": body["email"], "name": "Trader"},
		})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body Registration
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Email, mot de passe et nom sont requis"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"status": "success", "user_id": 8})
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "Authentification requise"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "success",
			"user":   map[string]any{"id": 7, "email": "trader@miicoin.io", "name": "Trader", "created_at": "Tue, 20 Feb 2024 12:00:00 GMT", "last_login": nil},
		})
	})
	mux.HandleFunc("PUT /auth/profile/update", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Profil mis à jour avec succès"})
	})
	mux.HandleFunc("GET /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "", Path: "/", MaxAge: -1})
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return New(baseURL, poller.NewClient(jar), testLogger())
}

func TestLogin_SessionReplayedOnProfile(t *testing.T) {
	ts := fakeBackend(t)
	c := newClient(t, ts.URL)
	ctx := context.Background()

	user, err := c.Login(ctx, "trader@miicoin.io", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if user.ID != 7 || user.Email != "trader@miicoin.io" {
		t.Errorf("Login() user = %+v", user)
	}

	p, err := c.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Name != "Trader" || p.CreatedAt.Year() != 2024 || !p.LastLogin.IsZero() {
		t.Errorf("Profile() = %+v", p)
	}

	name := "New Name"
	msg, err := c.UpdateProfile(ctx, ProfileUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if msg != "Profil mis à jour avec succès" {
		t.Errorf("UpdateProfile() message = %q", msg)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := c.Profile(ctx); err == nil {
		t.Error("Profile() after Logout should fail")
	}
}

func TestLogin_Rejected(t *testing.T) {
	ts := fakeBackend(t)
	c := newClient(t, ts.URL)

	_, err := c.Login(context.Background(), "trader@miicoin.io", "wrong")

	var se *poller.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusUnauthorized || se.Message != "Email ou mot de passe incorrect" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestLogin_MissingCredentials(t *testing.T) {
	c := newClient(t, "http://unused")
	if _, err := c.Login(context.Background(), "", "x"); err == nil {
		t.Error("Login() with empty email should fail")
	}
}

func TestProfile_Unauthenticated(t *testing.T) {
	ts := fakeBackend(t)
	c := newClient(t, ts.URL)

	_, err := c.Profile(context.Background())
	if err == nil || err.Error() != "Authentification requise" {
		t.Errorf("error = %v, want server message", err)
	}
}

func TestUpdateProfile_FallbackMessage(t *testing.T) {
	ts := fakeBackend(t)
	c := newClient(t, ts.URL)

	pw := "x"
	_, err := c.UpdateProfile(context.Background(), ProfileUpdate{Password: &pw})
	if err == nil || err.Error() != msgProfileUpdate {
		t.Errorf("error = %v, want %q", err, msgProfileUpdate)
	}
}

func TestUpdateProfile_Empty(t *testing.T) {
	c := newClient(t, "http://unused")
	if _, err := c.UpdateProfile(context.Background(), ProfileUpdate{}); err == nil {
		t.Error("UpdateProfile() with no fields should fail")
	}
}

func TestRegister(t *testing.T) {
	ts := fakeBackend(t)
	c := newClient(t, ts.URL)
	ctx := context.Background()

	id, err := c.Register(ctx, Registration{Email: "a@b.c", Password: "p", Name: "A"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if id != 8 {
		t.Errorf("Register() id = %d, want 8", id)
	}

	_, err = c.Register(ctx, Registration{Email: "a@b.c", Password: "p"})
	var se *poller.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Errorf("error = %v, want 400 StatusError", err)
	}
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := newClient(t, url)
	err := c.Logout(context.Background())

	var te *poller.TransportError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want *TransportError", err)
	}
}
