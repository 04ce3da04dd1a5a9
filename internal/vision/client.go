// Package vision is the HTTP client for the Vision anti-detect browser API.
// Every call is attempted exactly once; callers decide whether to retry.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"account_sync/internal/apperr"
	"account_sync/internal/config"
	"account_sync/internal/logbus"
	"account_sync/internal/model"
)

type Client struct {
	cfg     config.VisionConfig
	bus     *logbus.Bus
	http    *resty.Client
	limiter *rate.Limiter
}

// New builds a client. token is resolved once by the caller and reused for
// the lifetime of the client.
func New(cfg config.VisionConfig, token string, bus *logbus.Bus) *Client {
	qps := cfg.QPS
	if qps <= 0 {
		qps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:     cfg,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
	c.http = resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetRetryCount(0).
		SetHeader("x-token", token).
		SetHeader("Accept", "application/json")

	c.http.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.bus != nil {
			c.bus.Log("debug", "vision request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})
	return c
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

type Profile struct {
	ID          string `json:"id"`
	ProfileName string `json:"profile_name,omitempty"`
	// Raw is the full profile object as returned by Vision.
	Raw json.RawMessage `json:"-"`
}

func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type plain Profile
	return json.Marshal(plain(p))
}

type CreateProfileRequest struct {
	ProfileName    string            `json:"profile_name"`
	ProfileNotes   string            `json:"profile_notes"`
	ProfileTags    []string          `json:"profile_tags"`
	NewProfileTags []string          `json:"new_profile_tags"`
	ProfileStatus  *string           `json:"profile_status"`
	ProxyID        string            `json:"proxy_id,omitempty"`
	Platform       string            `json:"platform"`
	Browser        string            `json:"browser"`
	Fingerprint    model.Fingerprint `json:"fingerprint"`
}

type importCookiesReq struct {
	Cookies json.RawMessage `json:"cookies"`
}

func (c *Client) ProxyID() string { return c.cfg.ProxyID }

func (c *Client) GetFingerprint(ctx context.Context, os, browserVersion string) (model.Fingerprint, error) {
	const op = "vision.fingerprint"
	data, err := c.do(ctx, op, c.http.R().
		SetPathParams(map[string]string{"os": os, "version": browserVersion}),
		resty.MethodGet, "/fingerprints/{os}/{version}")
	if err != nil {
		return nil, err
	}
	var body struct {
		Fingerprint model.Fingerprint `json:"fingerprint"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, apperr.E(apperr.External, op, fmt.Errorf("decode fingerprint: %w", err))
	}
	if body.Fingerprint == nil {
		return nil, apperr.Errorf(apperr.External, op, "empty fingerprint in response")
	}
	return body.Fingerprint, nil
}

func (c *Client) CreateProfile(ctx context.Context, req CreateProfileRequest) (Profile, error) {
	const op = "vision.create_profile"
	if req.ProfileTags == nil {
		req.ProfileTags = []string{}
	}
	if req.NewProfileTags == nil {
		req.NewProfileTags = []string{}
	}
	data, err := c.do(ctx, op, c.http.R().
		SetPathParam("folderId", c.cfg.FolderID).
		SetBody(req),
		resty.MethodPost, "/folders/{folderId}/profiles")
	if err != nil {
		return Profile{}, err
	}
	return decodeProfile(op, data)
}

func (c *Client) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	const op = "vision.get_profile"
	data, err := c.do(ctx, op, c.http.R().
		SetPathParams(map[string]string{"folderId": c.cfg.FolderID, "profileId": profileID}),
		resty.MethodGet, "/folders/{folderId}/profiles/{profileId}")
	if err != nil {
		return Profile{}, err
	}
	return decodeProfile(op, data)
}

func (c *Client) DeleteProfile(ctx context.Context, profileID string) error {
	_, err := c.do(ctx, "vision.delete_profile", c.http.R().
		SetPathParams(map[string]string{"folderId": c.cfg.FolderID, "profileId": profileID}),
		resty.MethodDelete, "/folders/{folderId}/profiles/{profileId}")
	return err
}

func (c *Client) ImportCookies(ctx context.Context, profileID string, cookies json.RawMessage) error {
	_, err := c.do(ctx, "vision.import_cookies", c.http.R().
		SetPathParams(map[string]string{"folderId": c.cfg.FolderID, "profileId": profileID}).
		SetBody(importCookiesReq{Cookies: model.CookiesOrEmpty(cookies)}),
		resty.MethodPost, "/cookies/import/{folderId}/{profileId}")
	return err
}

// GetCookies returns the profile's cookie array exactly as Vision sent it.
func (c *Client) GetCookies(ctx context.Context, profileID string) (json.RawMessage, error) {
	const op = "vision.get_cookies"
	data, err := c.do(ctx, op, c.http.R().
		SetPathParams(map[string]string{"folderId": c.cfg.FolderID, "profileId": profileID}),
		resty.MethodGet, "/cookies/{folderId}/{profileId}")
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return json.RawMessage("[]"), nil
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, op string, req *resty.Request, method, path string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperr.E(apperr.External, op, err)
	}
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, apperr.E(apperr.External, op, err)
	}
	if resp.IsError() {
		return nil, apperr.E(apperr.External, op, statusError(resp))
	}
	// Vision does not always label JSON bodies, so decode by hand.
	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.E(apperr.External, op, fmt.Errorf("decode response: %w", err))
	}
	return env.Data, nil
}

func statusError(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode(), body)
}

func decodeProfile(op string, data json.RawMessage) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, apperr.E(apperr.External, op, fmt.Errorf("decode profile: %w", err))
	}
	if p.ID == "" {
		return Profile{}, apperr.E(apperr.External, op, errors.New("profile id missing in response"))
	}
	p.Raw = append(json.RawMessage(nil), data...)
	return p, nil
}
