package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrMemberNotFound is returned when the user has not joined the guild.
var ErrMemberNotFound = errors.New("discord guild member not found")

// JSON error codes Discord sends with a 404.
const (
	CodeUnknownGuild  = 10004
	CodeUnknownMember = 10007
	CodeUnknownRole   = 10011
)

// RateLimitError means the request was throttled, locally or by Discord.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord rate limited, retry after %s", e.RetryAfter)
}

// APIError is a non-success response from the Discord API. Code is the
// JSON error code from the body, 0 when absent.
type APIError struct {
	StatusCode int
	Code       int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Member is the subset of a guild member the benefit logic needs.
type Member struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the member currently holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Client is the bot-level Discord API used to manage guild roles.
type Client interface {
	GetGuildMember(ctx context.Context, guildID, userID string) (*Member, error)
	AddGuildMemberRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveGuildMemberRole(ctx context.Context, guildID, userID, roleID string) error
}

type restClient struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// NewClient returns a Client authenticated with a bot token. Requests above
// requestsPerSecond fail fast with a RateLimitError instead of waiting.
func NewClient(baseURL, botToken string, requestsPerSecond float64) Client {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &restClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Authorization", "Bot "+botToken).
			SetHeader("Content-Type", "application/json").
			SetTimeout(10 * time.Second),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (c *restClient) GetGuildMember(ctx context.Context, guildID, userID string) (*Member, error) {
	if err := c.reserve(); err != nil {
		return nil, err
	}
	member := &Member{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"guild": guildID, "user": userID}).
		SetResult(member).
		Get("/guilds/{guild}/members/{user}")
	if err != nil {
		return nil, fmt.Errorf("get guild member: %w", err)
	}
	if unknownMember(resp) {
		return nil, ErrMemberNotFound
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return member, nil
}

func (c *restClient) AddGuildMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.memberRole(ctx, http.MethodPut, guildID, userID, roleID)
}

func (c *restClient) RemoveGuildMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.memberRole(ctx, http.MethodDelete, guildID, userID, roleID)
}

func (c *restClient) memberRole(ctx context.Context, method, guildID, userID, roleID string) error {
	if err := c.reserve(); err != nil {
		return err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"guild": guildID, "user": userID, "role": roleID}).
		Execute(method, "/guilds/{guild}/members/{user}/roles/{role}")
	if err != nil {
		return fmt.Errorf("%s guild member role: %w", strings.ToLower(method), err)
	}
	// Unknown Role and Unknown Guild are 404s too, but waiting will not fix
	// them, so only a missing member maps to ErrMemberNotFound.
	if unknownMember(resp) {
		return ErrMemberNotFound
	}
	return checkResponse(resp)
}

func (c *restClient) reserve() error {
	r := c.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return &RateLimitError{RetryAfter: d}
	}
	return nil
}

func checkResponse(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Code: errorCode(resp), Body: resp.String()}
	}
	return nil
}

func unknownMember(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusNotFound && errorCode(resp) == CodeUnknownMember
}

func errorCode(resp *resty.Response) int {
	var body struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0
	}
	return body.Code
}

func retryAfter(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}
