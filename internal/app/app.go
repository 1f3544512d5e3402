// Package app wires the bot's components from configuration. Both entry
// points build through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"insurance-bot/internal/config"
	"insurance-bot/internal/integrations/mindee"
	"insurance-bot/internal/integrations/openai"
	"insurance-bot/internal/integrations/paramstore"
	"insurance-bot/internal/integrations/telegram"
	"insurance-bot/internal/repository"
	"insurance-bot/internal/storage"
	"insurance-bot/internal/usecase"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Log      *slog.Logger
	Telegram *telegram.Client
	Service  *usecase.ConversationService
}

// NewLogger returns the JSON logger installed by the entry points.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// Build connects every component described by cfg. AWS clients are only
// created when cfg asks for SSM credentials or a DynamoDB session table.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	var (
		ssmGetter paramstore.Getter
		dynamo    *awsdynamodb.Client
	)
	if cfg.Credentials.ParamPrefix != "" || cfg.Session.Table != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		if cfg.Credentials.ParamPrefix != "" {
			ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("app: create SSM client: %w", err)
			}
			ssmGetter = ssmClient
		}
		if cfg.Session.Table != "" {
			dynamo = awsdynamodb.NewFromConfig(awsCfg)
		}
	}
	getter := credentialGetter(cfg, ssmGetter)

	store, err := sessionStore(cfg, dynamo)
	if err != nil {
		return nil, err
	}

	extractor, err := mindee.New(getter, cfg.ParamName(config.MindeeTokenParam),
		mindee.WithBaseURL(cfg.OCR.BaseURL),
		mindee.WithAccount(cfg.OCR.Account),
		mindee.WithHTTPClient(&http.Client{Timeout: cfg.OCR.Timeout}),
		mindee.WithMinRequestInterval(cfg.OCR.MinRequestInterval),
		mindee.WithRequestAttempts(cfg.OCR.RequestAttempts),
		mindee.WithPollAttempts(cfg.OCR.MaxPollAttempts),
		mindee.WithBackoff(cfg.OCR.RetryDelay, cfg.OCR.BackoffCap),
		mindee.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create mindee client: %w", err)
	}

	llm, err := openai.NewClient(getter, cfg.ParamName(config.LLMTokenParam),
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithTemperature(cfg.LLM.Temperature),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
		openai.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create LLM client: %w", err)
	}
	policies := usecase.NewPolicyGenerator(llm, cfg.LLM.Model, cfg.LLM.Timeout, log)

	workspace, err := storage.NewWorkspace(cfg.Storage.DownloadsDir)
	if err != nil {
		return nil, err
	}
	archive, err := storage.NewArchive(cfg.Storage.ArchiveDir)
	if err != nil {
		return nil, err
	}

	bot, err := telegram.Dial(ctx, getter, cfg.ParamName(config.TelegramTokenParam), telegram.WithLogger(log))
	if err != nil {
		return nil, err
	}

	svc, err := usecase.NewConversationService(bot, extractor, policies, store, workspace,
		usecase.WithArchive(archive),
		usecase.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	log.Info("app.ready",
		"session_store", storeKind(cfg),
		"credentials", credentialKind(cfg),
		"llm_model", cfg.LLM.Model,
		"downloads_dir", workspace.Dir(),
	)
	return &App{Config: cfg, Log: log, Telegram: bot, Service: svc}, nil
}

// credentialGetter serves directly supplied credentials first and falls back
// to SSM when a parameter prefix is configured.
func credentialGetter(cfg *config.Config, ssm paramstore.Getter) paramstore.Getter {
	static := paramstore.Static(cfg.CredentialSource())
	if ssm == nil {
		return static
	}
	return paramstore.Layered{static, ssm}
}

func sessionStore(cfg *config.Config, dynamo *awsdynamodb.Client) (usecase.SessionStore, error) {
	if cfg.Session.Table == "" || dynamo == nil {
		return repository.NewMemoryStore(cfg.Session.TTL), nil
	}
	store, err := repository.New(dynamo, cfg.Session.Table, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("app: create session store: %w", err)
	}
	return store, nil
}

func storeKind(cfg *config.Config) string {
	if cfg.Session.Table != "" {
		return "dynamodb"
	}
	return "memory"
}

func credentialKind(cfg *config.Config) string {
	if cfg.Credentials.ParamPrefix != "" {
		return "ssm"
	}
	return "env"
}
