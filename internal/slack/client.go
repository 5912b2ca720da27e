package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const webAPIBaseURL = "https://slack.com/api"

// Client is a thin wrapper over the Slack Web API methods the bot needs.
type Client struct {
	client *resty.Client
}

func NewClient(botToken string) *Client {
	return NewClientWithBaseURL(botToken, webAPIBaseURL)
}

func NewClientWithBaseURL(botToken, baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(botToken).
			SetTimeout(10 * time.Second),
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage delivers a follow-up message to a channel via chat.postMessage.
// Used for event-subscription deliveries, where the webhook response itself is
// just an ack.
func (c *Client) PostMessage(ctx context.Context, channel, fallbackText string, blocks []Block) error {
	payload := map[string]any{
		"channel": channel,
		"text":    fallbackText,
	}
	if len(blocks) > 0 {
		payload["blocks"] = blocks
	}

	var out apiResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/chat.postMessage")
	if err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	if !res.IsSuccess() || !out.OK {
		return fmt.Errorf("chat.postMessage failed: status %d, error %q", res.StatusCode(), out.Error)
	}
	return nil
}

type userInfoResponse struct {
	apiResponse
	User struct {
		Profile struct {
			RealNameNormalized string `json:"real_name_normalized"`
		} `json:"profile"`
	} `json:"user"`
}

// UserRealName resolves a user id to a display name. Callers fall back to a
// placeholder on error; a failed lookup never fails the request.
func (c *Client) UserRealName(ctx context.Context, userID string) (string, error) {
	var out userInfoResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("user", userID).
		SetResult(&out).
		Get("/users.info")
	if err != nil {
		return "", fmt.Errorf("users.info: %w", err)
	}
	if !res.IsSuccess() || !out.OK {
		return "", fmt.Errorf("users.info failed: status %d, error %q", res.StatusCode(), out.Error)
	}
	return out.User.Profile.RealNameNormalized, nil
}

type oauthAccessResponse struct {
	apiResponse
	AccessToken string `json:"access_token"`
	BotUserID   string `json:"bot_user_id"`
	Team        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
}

// OAuthAccess exchanges an install-flow authorization code for a workspace
// bot token via oauth.v2.access.
func (c *Client) OAuthAccess(ctx context.Context, clientID, clientSecret, code string) (Installation, error) {
	var out oauthAccessResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     clientID,
			"client_secret": clientSecret,
			"code":          code,
		}).
		SetResult(&out).
		Post("/oauth.v2.access")
	if err != nil {
		return Installation{}, fmt.Errorf("oauth.v2.access: %w", err)
	}
	if !res.IsSuccess() || !out.OK {
		return Installation{}, fmt.Errorf("oauth.v2.access failed: status %d, error %q", res.StatusCode(), out.Error)
	}

	return Installation{
		TeamID:      out.Team.ID,
		TeamName:    out.Team.Name,
		BotToken:    out.AccessToken,
		BotUserID:   out.BotUserID,
		InstalledAt: time.Now().UTC(),
	}, nil
}

type authTestResponse struct {
	apiResponse
	UserID string `json:"user_id"`
}

// BotUserID returns the bot's own user id, used to strip self-mentions from
// incoming event text.
func (c *Client) BotUserID(ctx context.Context) (string, error) {
	var out authTestResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/auth.test")
	if err != nil {
		return "", fmt.Errorf("auth.test: %w", err)
	}
	if !res.IsSuccess() || !out.OK {
		return "", fmt.Errorf("auth.test failed: status %d, error %q", res.StatusCode(), out.Error)
	}

	slog.Debug("resolved bot user id", "user_id", out.UserID)
	return out.UserID, nil
}
