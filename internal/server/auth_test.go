package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/docqa-io/docqa/internal/store"
)

func setupAuthAPI(t *testing.T) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := NewEcho()
	h := &AuthHandler{Store: &store.Store{DB: db}, Secret: testSecret}
	h.Register(e.Group("/api/auth"))
	return e, mock
}

func TestSignupCreatesUser(t *testing.T) {
	e, mock := setupAuthAPI(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2)`)).
		WithArgs("alice@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "", AuthSignupRequest{Email: "alice@example.com", Password: "long-enough"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	e, _ := setupAuthAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "", AuthSignupRequest{Email: "a@b.c", Password: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLoginReturnsToken(t *testing.T) {
	e, mock := setupAuthAPI(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("long-enough"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	rec := doJSON(e, http.MethodPost, "/api/auth/login", "", AuthLoginRequest{Email: "alice@example.com", Password: "long-enough"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e, mock := setupAuthAPI(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("the-right-one"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	rec := doJSON(e, http.MethodPost, "/api/auth/login", "", AuthLoginRequest{Email: "alice@example.com", Password: "not-it-at-all"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
