// Package gateway реализует клиент backend API звонков: выдачу реквизитов
// входа (Credential Gateway) и best-effort уведомления о ходе звонка
// (Server Sync).
//
// Клиент не ретраит запросы: ретраи реквизитов - ответственность машины
// состояний (повторный JoinCall), а sync уведомления по контракту
// best-effort. Никакое состояние не персистится.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arzzra/soft_call/pkg/callsession"
)

// Проверка на соответствие портам во время компиляции
var (
	_ callsession.CredentialGateway = (*Client)(nil)
	_ callsession.ServerSync        = (*Client)(nil)
)

// Client HTTP клиент backend API звонков
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// ClientOption настройка клиента
type ClientOption func(*Client)

// WithHTTPClient подменяет http.Client (для тестов и кастомных транспортов)
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger подключает структурированный логгер
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient создает клиент backend API
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: BaseURL обязателен")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("gateway: некорректный BaseURL: %w", err)
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "gateway").Logger()
	return c, nil
}

// tokenRequest тело POST /calls/token
type tokenRequest struct {
	SessionID string `json:"sessionId"`
	CallKind  string `json:"callKind"`
}

// tokenResponse ответ POST /calls/token
type tokenResponse struct {
	AppID       string `json:"appId"`
	Token       string `json:"token"`
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"`
}

// RequestCredential запрашивает одноразовые реквизиты входа.
// Реализация порта callsession.CredentialGateway.
func (c *Client) RequestCredential(ctx context.Context, sessionID string, kind callsession.CallKind) (callsession.JoinCredential, error) {
	var resp tokenResponse
	err := c.post(ctx, "/calls/token", tokenRequest{SessionID: sessionID, CallKind: kind.String()}, &resp)
	if err != nil {
		return callsession.JoinCredential{}, callsession.ErrCredentialFetch(err)
	}
	return callsession.JoinCredential{
		AppID:       resp.AppID,
		Token:       resp.Token,
		ChannelName: resp.ChannelName,
		UID:         resp.UID,
	}, nil
}

// sessionEvent тело уведомлений join/leave
type sessionEvent struct {
	SessionID string `json:"sessionId"`
	UID       uint32 `json:"uid,omitempty"`
}

// NotifyJoin уведомляет backend о входе в звонок
func (c *Client) NotifyJoin(ctx context.Context, sessionID string, uid uint32) error {
	return c.post(ctx, "/calls/join", sessionEvent{SessionID: sessionID, UID: uid}, nil)
}

// NotifyLeave уведомляет backend о выходе участника
func (c *Client) NotifyLeave(ctx context.Context, sessionID string, uid uint32) error {
	return c.post(ctx, "/calls/leave", sessionEvent{SessionID: sessionID, UID: uid}, nil)
}

// NotifyEnd уведомляет backend о завершении звонка
func (c *Client) NotifyEnd(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/calls/end", sessionEvent{SessionID: sessionID}, nil)
}

// StartRecording включает запись на стороне backend
func (c *Client) StartRecording(ctx context.Context, sessionID string) error {
	return c.post(ctx, "/calls/recording/start", sessionEvent{SessionID: sessionID}, nil)
}

// recordingStopResponse ответ POST /calls/recording/stop
type recordingStopResponse struct {
	RecordingURL string `json:"recordingUrl"`
}

// StopRecording выключает запись; backend может вернуть ссылку на артефакт
func (c *Client) StopRecording(ctx context.Context, sessionID string) (string, error) {
	var resp recordingStopResponse
	if err := c.post(ctx, "/calls/recording/stop", sessionEvent{SessionID: sessionID}, &resp); err != nil {
		return "", err
	}
	return resp.RecordingURL, nil
}

// SessionInfo описание сессии со стороны backend
type SessionInfo struct {
	SessionID string `json:"sessionId"`
	CallKind  string `json:"callKind"`
	Active    bool   `json:"active"`
	Recording bool   `json:"recording"`
}

// GetSession возвращает описание сессии (для презентационного слоя)
func (c *Client) GetSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	var resp SessionInfo
	if err := c.get(ctx, "/calls/session/"+url.PathEscape(sessionID), &resp); err != nil {
		return SessionInfo{}, err
	}
	return resp, nil
}

// ParticipantInfo участник сессии со стороны backend
type ParticipantInfo struct {
	UID         uint32 `json:"uid"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// GetParticipants возвращает участников сессии (для презентационного слоя)
func (c *Client) GetParticipants(ctx context.Context, sessionID string) ([]ParticipantInfo, error) {
	var resp []ParticipantInfo
	if err := c.get(ctx, "/calls/participants/"+url.PathEscape(sessionID), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: сериализация %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: запрос %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("gateway: запрос %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn().
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("backend ответил ошибкой")
		return fmt.Errorf("gateway: %s %s: статус %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: разбор ответа %s: %w", req.URL.Path, err)
	}
	return nil
}
