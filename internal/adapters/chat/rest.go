package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	perr "nafbridge/internal/platform/errors"
	"nafbridge/internal/platform/logger"
)

const (
	restTimeout = 5 * time.Second
	restUA      = "nafbridge"
)

// RESTOptions configures the REST gateway
type RESTOptions struct {
	BaseURL  string
	BotToken string
	Timeout  time.Duration
}

// REST implements Gateway over the chat platform HTTP API with bot-token auth
type REST struct {
	http *http.Client
	opts RESTOptions
	log  logger.Logger
	now  func() time.Time
}

var _ Gateway = (*REST)(nil)

// NewREST builds a REST gateway with defaults applied
func NewREST(o RESTOptions) *REST {
	if o.Timeout <= 0 {
		o.Timeout = restTimeout
	}
	return &REST{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
		log:  *logger.Named("chat"),
		now:  time.Now,
	}
}

func (g *REST) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "chat marshal body failed")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.opts.BaseURL+path, rd)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInternal, "chat new request failed")
	}
	req.Header.Set("User-Agent", restUA)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.opts.BotToken != "" {
		req.Header.Set("Authorization", "Bot "+g.opts.BotToken)
	}

	start := g.now()
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "chat request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	g.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", g.now().Sub(start)).
		Msg("chat http response")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	case resp.StatusCode == http.StatusNotFound:
		return nil, perr.NotFoundf("chat entity not found")
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, perr.Authf("chat auth rejected status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, perr.RateLimitedf("chat rate limited")
	case resp.StatusCode >= 500:
		return nil, perr.Unavailablef("chat server error %d", resp.StatusCode)
	default:
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, perr.Internalf("chat unexpected status %d body %s", resp.StatusCode, string(tail))
	}
}

// ChannelMessage fetches one message
func (g *REST) ChannelMessage(ctx context.Context, channelID, messageID string) (Message, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	b, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Message{}, err
	}
	var out Message
	if err := json.Unmarshal(b, &out); err != nil {
		return Message{}, perr.Wrapf(err, perr.ErrorCodeJSON, "chat message decode failed")
	}
	return out, nil
}

// EditMessageEmbed replaces the embed list on a message.
// The payload omits components so interactive rows survive the edit
func (g *REST) EditMessageEmbed(ctx context.Context, channelID, messageID string, embed Embed) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	_, err := g.do(ctx, http.MethodPatch, path, map[string]any{
		"embeds": []Embed{embed},
	})
	return err
}

// SendMessage posts a plain content message to a channel
func (g *REST) SendMessage(ctx context.Context, channelID, content string) error {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	_, err := g.do(ctx, http.MethodPost, path, map[string]any{"content": content})
	return err
}

// Member fetches a guild member
func (g *REST) Member(ctx context.Context, guildID, userID string) (Member, error) {
	path := fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(guildID), url.PathEscape(userID))
	b, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Member{}, err
	}
	var out Member
	if err := json.Unmarshal(b, &out); err != nil {
		return Member{}, perr.Wrapf(err, perr.ErrorCodeJSON, "chat member decode failed")
	}
	return out, nil
}

// Guild fetches guild metadata
func (g *REST) Guild(ctx context.Context, guildID string) (Guild, error) {
	path := fmt.Sprintf("/guilds/%s", url.PathEscape(guildID))
	b, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Guild{}, err
	}
	var out Guild
	if err := json.Unmarshal(b, &out); err != nil {
		return Guild{}, perr.Wrapf(err, perr.ErrorCodeJSON, "chat guild decode failed")
	}
	return out, nil
}

// NotifyAdmins posts to the guild admin channel when one is configured
func (g *REST) NotifyAdmins(ctx context.Context, guildID, content string) error {
	guild, err := g.Guild(ctx, guildID)
	if err != nil {
		return err
	}
	if guild.AdminChannel == "" {
		g.log.Debug().Str("guild_id", guildID).Msg("no admin channel configured, skipping notify")
		return nil
	}
	return g.SendMessage(ctx, guild.AdminChannel, content)
}
