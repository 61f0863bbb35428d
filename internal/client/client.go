// Package client is a typed client for the fleet registry HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/models"
)

const defaultTimeout = 30 * time.Second

// Client calls the API on behalf of one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API served at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// Upload is a document file sent with a create or update.
type Upload struct {
	Category models.DocumentCategory
	FileName string
	Content  io.Reader
	Expiry   *time.Time
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// send performs req and returns the response when its status is 2xx.
// The caller closes the body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	_ = json.Unmarshal(body, &payload)

	if resp.StatusCode == http.StatusUnprocessableEntity && len(payload.Fields) > 0 {
		return &ValidationError{Status: resp.StatusCode, Fields: payload.Fields}
	}
	msg := payload.Error
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// do sends a JSON request and decodes a JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeBody(resp, out)
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Login exchanges credentials for a token, which the client keeps using.
func (c *Client) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("%w: login response has no token", ErrMalformed)
	}
	c.token = out.Token
	return &out, nil
}

// Register creates an account and keeps its token.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	var out models.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// FetchVehicles returns one page of the roster.
func (c *Client) FetchVehicles(ctx context.Context, q Query) (models.VehiclePage, error) {
	var page models.VehiclePage
	path := "/api/vehicles"
	if enc := q.Values().Encode(); enc != "" {
		path += "?" + enc
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return models.VehiclePage{}, err
	}
	return page, nil
}

// FetchAll walks every page of q and returns the whole matching roster.
func (c *Client) FetchAll(ctx context.Context, q Query) ([]models.Vehicle, error) {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var all []models.Vehicle
	for q.Page = 1; ; q.Page++ {
		page, err := c.FetchVehicles(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if len(page.Data) == 0 || len(all) >= page.Count {
			return all, nil
		}
	}
}

// GetVehicle fetches one vehicle.
func (c *Client) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := c.do(ctx, http.MethodGet, "/api/vehicles/"+url.PathEscape(id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVehicle registers a vehicle. Uploads are sent as a multipart form.
func (c *Client) CreateVehicle(ctx context.Context, p models.VehiclePayload, uploads ...Upload) (*models.Vehicle, error) {
	return c.writeVehicle(ctx, http.MethodPost, "/api/vehicles", p, uploads)
}

// UpdateVehicle replaces a vehicle's attributes and adds uploads as new documents.
func (c *Client) UpdateVehicle(ctx context.Context, id string, p models.VehiclePayload, uploads ...Upload) (*models.Vehicle, error) {
	return c.writeVehicle(ctx, http.MethodPut, "/api/vehicles/"+url.PathEscape(id), p, uploads)
}

func (c *Client) writeVehicle(ctx context.Context, method, path string, p models.VehiclePayload, uploads []Upload) (*models.Vehicle, error) {
	if err := p.Validate(); err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return nil, &ValidationError{Fields: verr.Fields}
		}
		return nil, err
	}

	var v models.Vehicle
	if len(uploads) == 0 {
		if err := c.do(ctx, method, path, p, &v); err != nil {
			return nil, err
		}
		return &v, nil
	}

	body, contentType, err := multipartBody(p, uploads)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := decodeBody(resp, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func multipartBody(p models.VehiclePayload, uploads []Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	vehicleJSON, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal vehicle: %w", err)
	}
	if err := mw.WriteField("vehicle", string(vehicleJSON)); err != nil {
		return nil, "", err
	}
	for _, u := range uploads {
		if u.Expiry != nil {
			if err := mw.WriteField("expiry["+string(u.Category)+"]", u.Expiry.UTC().Format(time.RFC3339)); err != nil {
				return nil, "", err
			}
		}
		part, err := mw.CreateFormFile("documents["+string(u.Category)+"]", u.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, u.Content); err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", u.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// DeleteVehicle removes a vehicle and its documents.
func (c *Client) DeleteVehicle(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/vehicles/"+url.PathEscape(id), nil, nil)
}

// Documents returns the compliance view of a vehicle. A non-positive
// alertDays uses the server's threshold.
func (c *Client) Documents(ctx context.Context, id string, alertDays int) (compliance.DocumentsView, error) {
	path := "/api/vehicles/" + url.PathEscape(id) + "/documents"
	if alertDays > 0 {
		path += fmt.Sprintf("?diasAlerta=%d", alertDays)
	}
	var view compliance.DocumentsView
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return compliance.DocumentsView{}, err
	}
	return view, nil
}

// DocumentURL asks for a short-lived link to a document's file.
func (c *Client) DocumentURL(ctx context.Context, documentID string) (models.SignedURL, error) {
	var out models.SignedURL
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(documentID)+"/url", nil, &out); err != nil {
		return models.SignedURL{}, err
	}
	if out.URL == "" {
		return models.SignedURL{}, fmt.Errorf("%w: signed url response has no url", ErrMalformed)
	}
	return out, nil
}

// DownloadDocument streams a document's file into w and returns the file
// name the server suggested.
func (c *Client) DownloadDocument(ctx context.Context, documentID string, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(documentID)+"/download", nil, "")
	if err != nil {
		return "", err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("%w: download interrupted: %v", ErrTransport, err)
	}
	return fileNameFrom(resp.Header.Get("Content-Disposition")), nil
}

func fileNameFrom(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
