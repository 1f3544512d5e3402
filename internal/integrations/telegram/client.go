package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"insurance-bot/internal/domain"
	"insurance-bot/internal/integrations/paramstore"
)

// botAPI is the subset of *tgbotapi.BotAPI used by Client.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client adapts the Telegram Bot API to the conversation service.
type Client struct {
	api        botAPI
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the client used to download inbound files.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(api botAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	c := &Client{
		api:        api,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dial resolves the bot token through getter and connects to the Bot API.
func Dial(ctx context.Context, getter paramstore.Getter, tokenName string, opts ...Option) (*Client, error) {
	token, err := paramstore.ResolveToken(ctx, getter, tokenName)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve token: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return New(bot, opts...)
}

// SendText sends text with an optional inline keyboard.
func (c *Client) SendText(_ context.Context, chatID int64, text string, keyboard [][]domain.Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = inlineKeyboard(keyboard)
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// SendDocument uploads the file at path under filename.
func (c *Client) SendDocument(_ context.Context, chatID int64, path, filename, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	if strings.TrimSpace(filename) == "" {
		filename = filepath.Base(path)
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: f})
	doc.Caption = caption
	if _, err := c.api.Send(doc); err != nil {
		return fmt.Errorf("telegram: send document: %w", err)
	}
	return nil
}

// DownloadFile saves the file identified by fileID to dest.
func (c *Client) DownloadFile(ctx context.Context, fileID, dest string) error {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("telegram: resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("telegram: create download request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: download file: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: download file: unexpected status %d", res.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("telegram: create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, res.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("telegram: write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("telegram: close %s: %w", dest, err)
	}
	return nil
}

// AnswerCallback acknowledges a button tap so the client stops its spinner.
func (c *Client) AnswerCallback(_ context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func inlineKeyboard(rows [][]domain.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Action))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
