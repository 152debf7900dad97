// Package awsutil loads AWS SDK configuration shared by the ECS client and
// the AWS-backed result stores.
package awsutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultRegion is used when neither the options nor the environment name one
const DefaultRegion = "us-east-1"

// Options selects the account, region and endpoint to talk to
type Options struct {
	Region  string
	Profile string
	// Endpoint overrides the service endpoint, e.g. a LocalStack URL
	Endpoint string
	// MaxAttempts caps the SDK retryer. Zero keeps the SDK default.
	MaxAttempts int
}

// LoadConfig builds an aws.Config for opts. LocalStack and localhost
// endpoints get static test credentials.
func LoadConfig(ctx context.Context, opts Options) (aws.Config, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	configOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.Profile != "" {
		configOptions = append(configOptions, config.WithSharedConfigProfile(opts.Profile))
	}
	if opts.MaxAttempts > 0 {
		configOptions = append(configOptions, config.WithRetryMaxAttempts(opts.MaxAttempts))
	}
	if IsLocalEndpoint(opts.Endpoint) {
		configOptions = append(configOptions,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// IsLocalEndpoint reports whether endpoint points at LocalStack or a local
// emulator
func IsLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	lower := strings.ToLower(endpoint)
	return strings.Contains(lower, "localstack") ||
		strings.Contains(lower, "localhost") ||
		strings.Contains(lower, "127.0.0.1")
}

// EndpointOverride returns endpoint as an SDK BaseEndpoint value, or nil
func EndpointOverride(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}
