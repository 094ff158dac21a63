package server

import "time"

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IngestRequest represents a new document payload.
type IngestRequest struct {
	Text       string `json:"text"`
	SourceName string `json:"source_name"`
}

// DocumentResponse surfaces document metadata.
type DocumentResponse struct {
	ID         string    `json:"id"`
	SourceName string    `json:"source_name"`
	PageCount  int       `json:"page_count"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// QueryRequest represents a question payload.
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResponse carries the grounded answer and its source locators.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// RetryableError tells clients a request may succeed if repeated.
type RetryableError struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}
