package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/clipsyncapp/api-clipsync/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Headers the server expects, mirrored here so the agent has no
// dependency on the handler package.
const (
	headerInstallationID = "Installation-Id"
	headerRefreshToken   = "Refresh-Token"
)

// ErrLoggedOut means the session is gone and cannot be refreshed; the
// device is back to the anonymous state and workers should stop.
var ErrLoggedOut = errors.New("logged out")

// APIError is a definitive server rejection (validation, forbidden,
// conflict). It is never retried.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server rejected request: status=%d body=%s", e.Status, e.Body)
}

// IsTransient reports whether an error is worth retrying: transport
// failures and server errors yes, definitive rejections and logout no.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return !errors.Is(err, ErrLoggedOut)
}

// Client is the agent's REST client. Every request ensures registration
// first and carries the Installation-Id header; authenticated requests
// run through a single-refresh circuit on 401.
type Client struct {
	baseURL   string
	http      *http.Client
	registrar *Registrar
	cache     *Cache

	// refreshMu serializes the refresh circuit so concurrent workers
	// hitting 401 at once perform one rotation, not a stampede.
	refreshMu sync.Mutex
}

func NewClient(baseURL string, registrar *Registrar, cache *Cache) *Client {
	return &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Minute},
		registrar: registrar,
		cache:     cache,
	}
}

// ==================== Plumbing ====================

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerInstallationID, c.registrar.InstallationID().String())
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := c.registrar.Ensure(ctx); err != nil {
		return err
	}
	return c.roundTrip(ctx, method, path, payload, out, "")
}

// doAuthed attaches the access token and runs the refresh circuit: a 401
// triggers exactly one refresh-and-retry; a second 401, or a 401 with no
// stored tokens, forces logout.
func (c *Client) doAuthed(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := c.registrar.Ensure(ctx); err != nil {
		return err
	}

	tokens, err := c.cache.Tokens()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.forceLogout()
		}
		return err
	}

	err = c.roundTrip(ctx, method, path, payload, out, tokens.AccessToken)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if err := c.refreshTokens(ctx); err != nil {
		return err
	}
	tokens, err = c.cache.Tokens()
	if err != nil {
		return c.forceLogout()
	}
	err = c.roundTrip(ctx, method, path, payload, out, tokens.AccessToken)
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return c.forceLogout()
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload, out interface{}, accessToken string) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// refreshTokens rotates the session once. No stored refresh token means
// there is nothing to rotate with: force logout immediately instead of
// looping.
func (c *Client) refreshTokens(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.cache.Tokens()
	if err != nil || tokens.RefreshToken == "" {
		return c.forceLogout()
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth_sessions/refresh", nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerRefreshToken, tokens.RefreshToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return c.forceLogout()
	}

	var session model.SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return err
	}
	return c.cache.SaveTokens(session.AccessToken, session.RefreshToken)
}

// forceLogout purges auth, account and link state (media rows survive)
// and reports the terminal condition to the caller.
func (c *Client) forceLogout() error {
	log.Println("🔒 Forced logout: purging local auth state")
	if err := c.cache.PurgeAuth(); err != nil {
		log.Printf("Failed to purge local auth state: %v", err)
	}
	return ErrLoggedOut
}

// ==================== Operations ====================

// RegisterInstallation performs the public idempotent upsert.
func (c *Client) RegisterInstallation(ctx context.Context, req model.RegisterInstallationRequest) error {
	return c.roundTrip(ctx, http.MethodPut, "/installations", req, nil, "")
}

// CreateSession logs in and persists the resulting identity locally.
func (c *Client) CreateSession(ctx context.Context, unique, secret string, linkID *uuid.UUID) (*model.SessionResponse, error) {
	var session model.SessionResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth_sessions", model.CreateSessionRequest{
		Unique: unique,
		Secret: secret,
		LinkID: linkID,
	}, &session)
	if err != nil {
		return nil, err
	}

	err = c.cache.SaveIdentity(
		LocalAccount{ID: session.Account.ID, Handle: session.Account.Handle, Name: session.Account.Name},
		LocalLink{ID: session.Link.ID, AccountID: session.Account.ID, Name: session.Link.Name},
		session.AccessToken, session.RefreshToken,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListMedias pulls the scoped "what's new for me" listing.
func (c *Client) ListMedias(ctx context.Context) ([]model.Media, error) {
	var medias []model.Media
	if err := c.doAuthed(ctx, http.MethodGet, "/medias", nil, &medias); err != nil {
		return nil, err
	}
	return medias, nil
}

// SaveReceipt acknowledges fetched blobs for this device.
func (c *Client) SaveReceipt(ctx context.Context, mediaID uuid.UUID, hasThumb, hasFile *bool) error {
	return c.doAuthed(ctx, http.MethodPost, "/medias/"+mediaID.String()+"/receipts", model.SaveReceiptRequest{
		HasThumb: hasThumb,
		HasFile:  hasFile,
	}, nil)
}

// NextRequest polls the server's durable request queue for the oldest
// outstanding request addressed to this device. nil means the queue is
// empty.
func (c *Client) NextRequest(ctx context.Context) (*model.MediaRequest, error) {
	var req model.MediaRequest
	if err := c.doAuthed(ctx, http.MethodGet, "/media_requests/next", nil, &req); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, nil
	}
	return &req, nil
}

// AbandonRequest deletes the device's outstanding requests for a media
// it cannot fulfil, so the server stops holding them.
func (c *Client) AbandonRequest(ctx context.Context, mediaID uuid.UUID) error {
	return c.doAuthed(ctx, http.MethodDelete, "/media_requests/"+mediaID.String(), nil, nil)
}

// UploadMedia streams one blob as a multipart request. Metadata fields
// are written before the binary part, as the server requires. The stream
// is single-attempt: the caller owns retry and backoff.
func (c *Client) UploadMedia(ctx context.Context, m *LocalMedia, kind model.MediaKind, blob io.Reader, size int64) error {
	if err := c.registrar.Ensure(ctx); err != nil {
		return err
	}
	tokens, err := c.cache.Tokens()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.forceLogout()
		}
		return err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadBody(mw, m, kind, blob, size)
		mw.Close()
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/medias/"+m.ID.String()+"/"+string(kind), pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	return nil
}

// FetchRaw opens a blob stream. The caller must close it.
func (c *Client) FetchRaw(ctx context.Context, mediaID uuid.UUID, kind model.MediaKind) (io.ReadCloser, error) {
	if err := c.registrar.Ensure(ctx); err != nil {
		return nil, err
	}
	tokens, err := c.cache.Tokens()
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/medias/"+mediaID.String()+"/"+string(kind)+"/raw", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode}
	}
	return resp.Body, nil
}

func writeUploadBody(mw *multipart.Writer, m *LocalMedia, kind model.MediaKind, blob io.Reader, size int64) error {
	fields := map[string]string{
		"path": m.Path,
		"dir":  m.Dir,
		"mod":  strconv.FormatInt(m.ModifiedTime.UnixMilli(), 10),
		"size": strconv.FormatInt(size, 10),
	}
	if m.CreatedTime != nil {
		fields["cre"] = strconv.FormatInt(m.CreatedTime.UnixMilli(), 10)
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("data", string(kind))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, blob)
	return err
}
