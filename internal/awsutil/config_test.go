package awsutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocalEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		want     bool
	}{
		{"", false},
		{"http://localhost:4566", true},
		{"http://LOCALSTACK:4566", true},
		{"http://127.0.0.1:4566", true},
		{"https://ecs.eu-west-1.amazonaws.com", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLocalEndpoint(tt.endpoint), tt.endpoint)
	}
}

func TestEndpointOverride(t *testing.T) {
	t.Parallel()

	assert.Nil(t, EndpointOverride(""))
	require.NotNil(t, EndpointOverride("http://localhost:4566"))
	assert.Equal(t, "http://localhost:4566", *EndpointOverride("http://localhost:4566"))
}

func TestLoadConfig_LocalStackUsesStaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	cfg, err := LoadConfig(context.Background(), Options{
		Region:      "eu-west-1",
		Endpoint:    "http://localhost:4566",
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
	assert.Equal(t, 2, cfg.RetryMaxAttempts)
}

func TestLoadConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	cfg, err := LoadConfig(context.Background(), Options{Endpoint: "http://localhost:4566"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRegion, cfg.Region)
}
