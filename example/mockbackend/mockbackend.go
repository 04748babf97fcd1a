// Package mockbackend serves a stand-in for the MiiCoin backend: trading
// signals, bot status and cookie-session auth, all in memory.
//
// It exists for demos and end-to-end tests of the CLI.
package mockbackend

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionCookie = "session"

// Options configures a [Backend].
type Options struct {
	// Symbols are the markets signals are generated for.
	Symbols []string

	// FailEvery makes every n-th /api/signals request answer HTTP 500.
	// Zero never fails.
	FailEvery int

	// Now replaces time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

type user struct {
	id        int
	email     string
	name      string
	password  string
	createdAt time.Time
	lastLogin *time.Time
}

// Backend is an http.Handler for the MiiCoin routes.
type Backend struct {
	mux     *http.ServeMux
	opts    Options
	logger  *slog.Logger
	mu      sync.Mutex
	rng     *rand.Rand
	calls   int
	prices  map[string]float64
	users   map[string]*user
	nextID  int
	session map[string]*user
}

// New returns a backend with the given options.
func New(opts Options) *Backend {
	if len(opts.Symbols) == 0 {
		opts.Symbols = []string{"BTC/USDT", "ETH/USDT", "BNB/USDT"}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	b := &Backend{
		mux:     http.NewServeMux(),
		opts:    opts,
		logger:  opts.Logger,
		rng:     rand.New(rand.NewSource(1)),
		prices:  map[string]float64{"BTC/USDT": 43250.5, "ETH/USDT": 2310.25, "BNB/USDT": 305.1},
		users:   make(map[string]*user),
		nextID:  1,
		session: make(map[string]*user),
	}

	b.mux.HandleFunc("GET /api/signals", b.handleSignals)
	b.mux.HandleFunc("GET /api/bot/status", b.handleBotStatus)
	b.mux.HandleFunc("POST /auth/register", b.handleRegister)
	b.mux.HandleFunc("POST /auth/login", b.handleLogin)
	b.mux.HandleFunc("GET /auth/logout", b.requireLogin(b.handleLogout))
	b.mux.HandleFunc("GET /auth/profile", b.requireLogin(b.handleProfile))
	b.mux.HandleFunc("PUT /auth/profile/update", b.requireLogin(b.handleProfileUpdate))
	b.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Resource not found")
	})
	return b
}

// AddUser creates an account, as a registration would.
func (b *Backend) AddUser(email, password, name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(email, password, name)
}

func (b *Backend) addUserLocked(email, password, name string) int {
	u := &user{
		id:        b.nextID,
		email:     email,
		name:      name,
		password:  password,
		createdAt: b.opts.Now().UTC(),
	}
	b.nextID++
	b.users[email] = u
	return u.id
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

type signal struct {
	Symbol    string  `json:"symbol"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func (b *Backend) handleSignals(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls++
	fail := b.opts.FailEvery > 0 && b.calls%b.opts.FailEvery == 0

	symbols := b.opts.Symbols
	if s := r.URL.Query().Get("symbol"); s != "" {
		symbols = []string{s}
	}

	now := httpTime(b.opts.Now())
	out := make([]signal, 0, len(symbols))
	for _, sym := range symbols {
		price := b.prices[sym]
		if price == 0 {
			price = 100
		}
		// drift within 0.5%
		price *= 1 + (b.rng.Float64()-0.5)/100
		b.prices[sym] = price

		kind := "BUY"
		if b.rng.Intn(2) == 1 {
			kind = "SELL"
		}
		out = append(out, signal{Symbol: sym, Type: kind, Price: roundCents(price), Timestamp: now})
	}
	b.mu.Unlock()

	if fail {
		b.logger.Info("injecting signals failure")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "signals": out})
}

func (b *Backend) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "running",
		"active_trades": 0,
		"last_trade":    nil,
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    *string `json:"email"`
		Password *string `json:"password"`
		Name     *string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == nil || req.Password == nil || req.Name == nil {
		writeError(w, http.StatusBadRequest, "Email, mot de passe et nom sont requis")
		return
	}

	b.mu.Lock()
	if _, exists := b.users[*req.Email]; exists {
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Cet email est déjà utilisé")
		return
	}
	id := b.addUserLocked(*req.Email, *req.Password, *req.Name)
	b.mu.Unlock()

	b.logger.Info("user registered", "email", *req.Email)
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"message": "Inscription réussie",
		"user_id": id,
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == nil || req.Password == nil {
		writeError(w, http.StatusBadRequest, "Email et mot de passe sont requis")
		return
	}

	b.mu.Lock()
	u, ok := b.users[*req.Email]
	if !ok || u.password != *req.Password {
		b.mu.Unlock()
		writeError(w, http.StatusUnauthorized, "Email ou mot de passe incorrect")
		return
	}
	now := b.opts.Now().UTC()
	u.lastLogin = &now
	token := uuid.NewString()
	b.session[token] = u
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Connexion réussie",
		"user":    map[string]any{"id": u.id, "email": u.email, "name": u.name},
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, token string, u *user)

// requireLogin answers 401 unless the request carries a live session.
func (b *Backend) requireLogin(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err == nil {
			b.mu.Lock()
			u, ok := b.session[c.Value]
			b.mu.Unlock()
			if ok {
				next(w, r, c.Value, u)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "Authentification requise")
	}
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request, token string, u *user) {
	b.mu.Lock()
	delete(b.session, token)
	b.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Déconnexion réussie"})
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request, _ string, u *user) {
	b.mu.Lock()
	profile := map[string]any{
		"id":          u.id,
		"email":       u.email,
		"name":        u.name,
		"profile_pic": nil,
		"created_at":  httpTime(u.createdAt),
		"last_login":  nil,
	}
	if u.lastLogin != nil {
		profile["last_login"] = httpTime(*u.lastLogin)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "user": profile})
}

func (b *Backend) handleProfileUpdate(w http.ResponseWriter, r *http.Request, _ string, u *user) {
	var req struct {
		Name     *string `json:"name"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Données invalides")
		return
	}

	b.mu.Lock()
	if req.Name != nil {
		u.name = strings.TrimSpace(*req.Name)
	}
	if req.Password != nil {
		u.password = *req.Password
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Profil mis à jour avec succès"})
}

// httpTime formats t the way the backend's JSON encoder does.
func httpTime(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func roundCents(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "message": msg})
}
