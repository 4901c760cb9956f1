// Package lineapi is a small client for the LINE Messaging API endpoints the
// bot needs: member profiles, group summaries and replies.
package lineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.line.me"

	// MaxTextLength is the character limit of a text message.
	MaxTextLength = 5000
	// MaxReplyMessages is the number of messages one reply may carry.
	MaxReplyMessages = 5

	maxResponseBytes = 1 << 20
)

var ErrUnexpectedStatus = errors.New("unexpected status from LINE API")

// Config holds the channel credentials
type Config struct {
	AccessToken string        `env:"LINE_CHANNEL_ACCESS_TOKEN"`
	BaseURL     string        `env:"LINE_API_BASE_URL" envDefault:"https://api.line.me"`
	Timeout     time.Duration `env:"LINE_API_TIMEOUT" envDefault:"5s"`
}

// StatusError carries the HTTP status and body of a failed call
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LINE API responded %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Client talks to the Messaging API with a bearer token.
type Client struct {
	logger     *zap.SugaredLogger
	httpClient *http.Client
	baseURL    string
	token      string
	parsers    fastjson.ParserPool
}

func NewClient(logger *zap.SugaredLogger, cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      cfg.AccessToken,
	}
}

// GroupMemberName returns the display name of userID inside groupID
func (c *Client) GroupMemberName(ctx context.Context, groupID, userID string) (string, error) {
	path := "/v2/bot/group/" + url.PathEscape(groupID) + "/member/" + url.PathEscape(userID)
	return c.getString(ctx, path, "displayName")
}

// GroupName returns the name of groupID
func (c *Client) GroupName(ctx context.Context, groupID string) (string, error) {
	path := "/v2/bot/group/" + url.PathEscape(groupID) + "/summary"
	return c.getString(ctx, path, "groupName")
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// Reply answers an event with up to MaxReplyMessages texts. Longer texts are
// truncated to MaxTextLength.
func (c *Client) Reply(ctx context.Context, replyToken string, texts ...string) error {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) > MaxReplyMessages {
		c.logger.Warnf("Dropping %d reply messages over the limit", len(texts)-MaxReplyMessages)
		texts = texts[:MaxReplyMessages]
	}

	req := replyRequest{ReplyToken: replyToken, Messages: make([]textMessage, 0, len(texts))}
	for _, t := range texts {
		req.Messages = append(req.Messages, textMessage{Type: "text", Text: truncate(t, MaxTextLength)})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	_, err = c.do(ctx, http.MethodPost, "/v2/bot/message/reply", bytes.NewReader(payload))
	return err
}

func (c *Client) getString(ctx context.Context, path, field string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	parser := c.parsers.Get()
	defer c.parsers.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(v.GetStringBytes(field)), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
