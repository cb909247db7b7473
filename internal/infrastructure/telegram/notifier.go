package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"NewsRelay/internal/config"
	"NewsRelay/internal/ports"
)

// Notifier delivers HTML messages and photos through the Telegram Bot API.
type Notifier struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     *slog.Logger
}

var _ ports.Transport = (*Notifier)(nil)

// chat addresses either a numeric chat id or an @channel username.
type chat string

func (c chat) Recipient() string { return string(c) }

// NewNotifier builds an offline bot; no request is made until the first send.
// timeout bounds every Bot API call, since telebot requests carry no context.
func NewNotifier(cfg config.TelegramConfig, timeout time.Duration, log *slog.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.BotToken,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Notifier{
		bot:     b,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		log:     log.With("component", "telegram"),
	}, nil
}

// SendPhoto posts imageURL with an HTML caption. Telegram fetches the image itself.
func (n *Notifier) SendPhoto(ctx context.Context, target, imageURL, caption string) error {
	if err := n.wait(ctx); err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.FromURL(imageURL), Caption: caption}
	if _, err := n.bot.Send(chat(target), photo, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
		n.log.Debug("send photo failed", "target", target, "image", imageURL, "error", err)
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendMessage posts an HTML text message without link previews.
func (n *Notifier) SendMessage(ctx context.Context, target, text string) error {
	if err := n.wait(ctx); err != nil {
		return err
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if _, err := n.bot.Send(chat(target), text, opts); err != nil {
		n.log.Debug("send message failed", "target", target, "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Check verifies the token with getMe and posts a short check message.
func (n *Notifier) Check(ctx context.Context, target string) error {
	if strings.TrimSpace(target) == "" {
		return errors.New("telegram chat id is empty")
	}
	if _, err := n.bot.Raw("getMe", map[string]string{}); err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	return n.SendMessage(ctx, target, "✅ NewsRelay connectivity check "+stamp)
}

func (n *Notifier) wait(ctx context.Context) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}
