// Package testutil starts throwaway containers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

func init() {
	// Set globally so tests using containers can still call t.Parallel()
	_ = os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
}

// LocalStackImage is the LocalStack image used by integration tests
const LocalStackImage = "localstack/localstack:3.8.1"

// LocalStackContainer holds the test LocalStack container and connection details
type LocalStackContainer struct {
	Container testcontainers.Container
	Endpoint  string
}

// SetupLocalStack starts LocalStack with the services the result stores use
func SetupLocalStack(t *testing.T) *LocalStackContainer {
	t.Helper()
	return SetupLocalStackWithServices(t, "dynamodb,s3")
}

// SetupLocalStackWithServices starts an individual LocalStack container
// with the given comma separated services. ECSWAIT_TEST_AWS_ENDPOINT
// points tests at an already running instance instead.
func SetupLocalStackWithServices(t *testing.T, services string) *LocalStackContainer {
	t.Helper()

	if endpoint := os.Getenv("ECSWAIT_TEST_AWS_ENDPOINT"); endpoint != "" {
		return &LocalStackContainer{Endpoint: endpoint}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := localstack.Run(ctx, LocalStackImage,
		testcontainers.WithEnv(map[string]string{
			"SERVICES": services,
			"DEBUG":    "0",
		}),
	)
	if err != nil {
		t.Skipf("LocalStack unavailable: %v", err)
	}

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Failed to terminate LocalStack container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "4566/tcp")
	if err != nil {
		t.Fatalf("Failed to get LocalStack port: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get LocalStack host: %v", err)
	}

	return &LocalStackContainer{
		Container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, mappedPort.Port()),
	}
}
