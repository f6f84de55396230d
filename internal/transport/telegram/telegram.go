// Package telegram delivers notifications through the Telegram Bot API.
// Outbound only: the watcher never consumes updates.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"shopwatch/internal/watch"
	"shopwatch/pkg/logx"
)

type Config struct {
	Token string
	// Offline skips the getMe probe; used in tests.
	Offline bool
}

type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) SendText(ctx context.Context, dest watch.Destination, text string) error {
	_, err := a.bot.Send(chat(dest), text, sendOptions(dest))
	return err
}

func (a *Adapter) SendPhoto(ctx context.Context, dest watch.Destination, img, caption string) error {
	photo := &tele.Photo{File: tele.FromURL(img), Caption: caption}
	_, err := a.bot.Send(chat(dest), photo, sendOptions(dest))
	if err != nil {
		// A dead image URL should not cost the digest text.
		a.log.Warn("photo send failed; falling back to text", logx.Err(err))
		return a.SendText(ctx, dest, caption)
	}
	return nil
}

func chat(dest watch.Destination) *tele.Chat {
	return &tele.Chat{ID: dest.ChatID}
}

func sendOptions(dest watch.Destination) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              dest.ThreadID,
	}
}

// Healthcheck verifies the token is still accepted. Called once at startup.
func (a *Adapter) Healthcheck(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Commands()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return errors.New("telegram healthcheck timed out")
	}
}
