// Package session provides AWS configuration loading and DynamoDB client
// construction for the PartiQL backend.
package session

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"gopkg.in/yaml.v3"
)

// configLoadFunc is a variable to allow stubbing config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Config holds the AWS-facing configuration for the backend.
type Config struct {
	CredentialsProvider aws.CredentialsProvider `json:"-" yaml:"-"`
	Region              string                  `json:"region" yaml:"region"`
	// Endpoint overrides the DynamoDB endpoint, typically for DynamoDB Local.
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
	// Static credentials, used only when CredentialsProvider is unset. Leave
	// empty to use the default AWS credential chain.
	AccessKeyID      string                            `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey  string                            `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken     string                            `json:"session_token" yaml:"session_token"`
	AWSConfigOptions []func(*config.LoadOptions) error `json:"-" yaml:"-"`
	DynamoDBOptions  []func(*dynamodb.Options)         `json:"-" yaml:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// LoadConfigFile reads a Config from a YAML file, filling unset fields with
// defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultConfig().Region
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return cfg, nil
}

// Session manages the AWS configuration and DynamoDB client
type Session struct {
	config    *Config
	client    *dynamodb.Client
	awsConfig aws.Config
}

// NewSession creates a new session with the given configuration
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	switch {
	case cfg.CredentialsProvider != nil:
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))
	options = append(options, config.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(context.Background(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}
	}

	clientOptions := make([]func(*dynamodb.Options), 0, 1+len(cfg.DynamoDBOptions))
	clientOptions = append(clientOptions, func(o *dynamodb.Options) {
		o.Region = awsConfig.Region
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	clientOptions = append(clientOptions, cfg.DynamoDBOptions...)

	return &Session{
		config:    cfg,
		client:    dynamodb.NewFromConfig(awsConfig, clientOptions...),
		awsConfig: awsConfig,
	}, nil
}

// Client returns the DynamoDB client
func (s *Session) Client() *dynamodb.Client {
	return s.client
}

// Config returns the session configuration
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the resolved AWS configuration
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}
