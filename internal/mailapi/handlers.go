// handlers.go -- HTTP handlers for the /api/messages endpoints.
//
// All routes run behind auth.RequireAuth; the access token arrives through
// the request context and a fresh Gmail client is built per request.
package mailapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"google.golang.org/api/googleapi"

	"github.com/mailo-app/mailo/internal/auth"
)

const defaultPageSize = 25

// MailClient is the slice of Gmail operations the handlers need.
// Satisfied by *Client; swapped for a fake in tests.
type MailClient interface {
	ListMessages(ctx context.Context, opts ListOptions) (*MessageList, error)
	GetMessage(ctx context.Context, id string) (*MessageSummary, error)
	SendMessage(ctx context.Context, out OutgoingMessage) (string, error)
}

// ClientFactory builds a MailClient for one request's access token.
type ClientFactory func(ctx context.Context, accessToken string) (MailClient, error)

// DefaultClientFactory builds real Gmail clients.
func DefaultClientFactory(ctx context.Context, accessToken string) (MailClient, error) {
	return NewClient(ctx, accessToken)
}

// MailHandler holds dependencies for the /api/messages handlers.
type MailHandler struct {
	NewClient ClientFactory
}

// List handles GET /api/messages -- one page of the mailbox.
// Query params: q (Gmail search syntax, passed through), pageToken, maxResults.
func (h *MailHandler) List(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	opts := ListOptions{
		Query:      r.URL.Query().Get("q"),
		PageToken:  r.URL.Query().Get("pageToken"),
		MaxResults: defaultPageSize,
	}
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > 100 {
			auth.BadRequest(w, r, "invalid maxResults")
			return
		}
		opts.MaxResults = n
	}

	list, err := client.ListMessages(r.Context(), opts)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/messages/{id}.
func (h *MailHandler) Get(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	msg, err := client.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Send handles POST /api/messages/send.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	client, ok := h.clientFor(w, r)
	if !ok {
		return
	}

	var out OutgoingMessage
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		auth.BadRequest(w, r, "error decoding request body")
		return
	}
	if out.To == "" {
		auth.BadRequest(w, r, "to is required")
		return
	}

	id, err := client.SendMessage(r.Context(), out)
	if err != nil {
		upstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// clientFor builds a Gmail client from the gate-resolved access token.
// Writes the error response itself when it fails.
func (h *MailHandler) clientFor(w http.ResponseWriter, r *http.Request) (MailClient, bool) {
	accessToken, ok := auth.AccessTokenFromContext(r.Context())
	if !ok {
		auth.Unauthorized(w, r, "unauthorized")
		return nil, false
	}
	client, err := h.NewClient(r.Context(), accessToken)
	if err != nil {
		auth.InternalServerError(w, r, err)
		return nil, false
	}
	return client, true
}

// upstreamError maps Gmail API failures onto our responses. 404s pass
// through; everything else is a 502 with detail kept in the logs.
func upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"message not found"}`))
		return
	}

	slog.Error("mail provider call failed", "error", err, "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	w.Write([]byte(`{"message":"mail provider error"}`))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
