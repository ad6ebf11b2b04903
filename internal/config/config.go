package config

import (
	"fmt"
	"log"
	"net/mail"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/vdavid/draftmail/internal/compose"
	"github.com/vdavid/draftmail/internal/delivery"
	"github.com/vdavid/draftmail/internal/llm"
)

type Config struct {
	Environment string `env:"DRAFTMAIL_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`

	GroqAPIKey   string        `env:"GROQ_API_KEY"`
	ModelBaseURL string        `env:"DRAFTMAIL_MODEL_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	Model        string        `env:"DRAFTMAIL_MODEL" envDefault:"llama-3.3-70b-versatile"`
	ModelTimeout time.Duration `env:"DRAFTMAIL_MODEL_TIMEOUT" envDefault:"60s"`

	Transport              string        `env:"DRAFTMAIL_TRANSPORT" envDefault:"smtp"`
	SMTPHost               string        `env:"SMTP_HOST"`
	SMTPPort               int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser               string        `env:"SMTP_USER"`
	SMTPPassword           string        `env:"SMTP_PASSWORD"`
	SMTPFromName           string        `env:"SMTP_FROM_NAME"`
	SMTPFromEmail          string        `env:"SMTP_FROM_EMAIL"`
	SMTPTLSMode            string        `env:"SMTP_TLS_MODE" envDefault:"starttls"`
	SMTPInsecureSkipVerify bool          `env:"SMTP_INSECURE_SKIP_VERIFY" envDefault:"false"`
	SMTPTimeout            time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`
	OperationalBCC         string        `env:"DRAFTMAIL_OPERATIONAL_BCC"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	DevOutboxDir         string `env:"DRAFTMAIL_DEV_OUTBOX_DIR" envDefault:"./outbox"`

	MaxEditorSessions int `env:"DRAFTMAIL_MAX_EDITOR_SESSIONS" envDefault:"100"`
}

func NewConfig() (*Config, error) {
	environment := os.Getenv("DRAFTMAIL_ENV")
	if environment == "" || environment == "development" {
		if err := godotenv.Load(); err != nil {
			log.Println("Config: Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.SMTPInsecureSkipVerify {
		log.Println("Config: Warning: SMTP_INSECURE_SKIP_VERIFY is enabled, SMTP certificates will not be verified")
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.GroqAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}

	if u, err := url.Parse(c.ModelBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("DRAFTMAIL_MODEL_BASE_URL must use http:// or https:// scheme")
	}

	if c.SMTPFromEmail == "" {
		return fmt.Errorf("SMTP_FROM_EMAIL is required")
	}
	if _, err := mail.ParseAddress(c.SMTPFromEmail); err != nil {
		return fmt.Errorf("SMTP_FROM_EMAIL is not a valid email address: %w", err)
	}

	if c.OperationalBCC == "" {
		return fmt.Errorf("DRAFTMAIL_OPERATIONAL_BCC is required")
	}
	if _, err := mail.ParseAddress(c.OperationalBCC); err != nil {
		return fmt.Errorf("DRAFTMAIL_OPERATIONAL_BCC is not a valid email address: %w", err)
	}

	if c.MaxEditorSessions <= 0 {
		return fmt.Errorf("DRAFTMAIL_MAX_EDITOR_SESSIONS must be positive")
	}

	switch c.Transport {
	case delivery.TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp transport")
		}
		switch c.SMTPTLSMode {
		case delivery.TLSModeStartTLS, delivery.TLSModeImplicit, delivery.TLSModeNone:
		default:
			return fmt.Errorf("SMTP_TLS_MODE must be one of starttls, tls, none (got %q)", c.SMTPTLSMode)
		}
	case delivery.TransportPostmark:
		if c.PostmarkServerToken == "" {
			return fmt.Errorf("POSTMARK_SERVER_TOKEN is required for the postmark transport")
		}
	case delivery.TransportDev:
		if c.DevOutboxDir == "" {
			return fmt.Errorf("DRAFTMAIL_DEV_OUTBOX_DIR is required for the dev transport")
		}
	default:
		return fmt.Errorf("DRAFTMAIL_TRANSPORT must be one of smtp, postmark, dev (got %q)", c.Transport)
	}

	return nil
}

// LLMConfig returns the model service client settings.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		APIKey:  c.GroqAPIKey,
		BaseURL: c.ModelBaseURL,
		Model:   c.Model,
		Timeout: c.ModelTimeout,
	}
}

// AssemblerConfig returns the sender identity and audit policy.
func (c *Config) AssemblerConfig() compose.AssemblerConfig {
	return compose.AssemblerConfig{
		FromName:       c.SMTPFromName,
		FromAddress:    c.SMTPFromEmail,
		OperationalBCC: c.OperationalBCC,
	}
}

// DeliveryConfig returns the transport settings.
func (c *Config) DeliveryConfig() delivery.Config {
	return delivery.Config{
		Transport: c.Transport,
		SMTP: delivery.SMTPConfig{
			Host:               c.SMTPHost,
			Port:               c.SMTPPort,
			Username:           c.SMTPUser,
			Password:           c.SMTPPassword,
			TLSMode:            c.SMTPTLSMode,
			InsecureSkipVerify: c.SMTPInsecureSkipVerify,
			Timeout:            c.SMTPTimeout,
		},
		Postmark: delivery.PostmarkConfig{
			ServerToken:  c.PostmarkServerToken,
			AccountToken: c.PostmarkAccountToken,
		},
		DevOutboxDir: c.DevOutboxDir,
	}
}
