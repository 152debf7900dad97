package targets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattiam/ecswait/internal/waiter"
)

var testEnv = map[string]string{
	"ECS_CLUSTER": "prod",
	"STAGE":       "Blue",
}

func waitBlock(attrs ...string) string {
	return "wait \"web\" {\n" + strings.Join(attrs, "\n") + "\n}\n"
}

func TestParse_LayersBudgets(t *testing.T) {
	t.Parallel()

	src := `
defaults {
  timeout       = "20m"
  poll_interval = "10s"
}

wait "web" {
  cluster = env.ECS_CLUSTER
  service = "web-${lower(env.STAGE)}"
}

wait "worker" {
  cluster            = env.ECS_CLUSTER
  service            = "worker"
  deployment_id      = "ecs-svc/8123"
  timeout            = "5m"
  backoff_multiplier = 2
  max_interval       = "1m"
  jitter             = 0
}
`
	base := waiter.DefaultBudgetConfig()
	targets, err := NewParser(base, WithEnv(testEnv)).Parse([]byte(src), "waits.hcl")
	require.NoError(t, err)
	require.Len(t, targets, 2)

	web := targets[0]
	assert.Equal(t, "web", web.Name)
	assert.Equal(t, waiter.DeploymentReference{Cluster: "prod", Service: "web-blue"}, web.Reference)
	assert.Equal(t, 20*time.Minute, web.Budget.Timeout)
	assert.Equal(t, 10*time.Second, web.Budget.PollInterval)
	assert.Equal(t, base.Multiplier, web.Budget.Multiplier)
	assert.Equal(t, base.MaxInterval, web.Budget.MaxInterval)
	assert.Equal(t, base.Jitter, web.Budget.Jitter)

	worker := targets[1]
	assert.Equal(t, "ecs-svc/8123", worker.Reference.DeploymentID)
	assert.Equal(t, 5*time.Minute, worker.Budget.Timeout)
	assert.Equal(t, 10*time.Second, worker.Budget.PollInterval)
	assert.InDelta(t, 2.0, worker.Budget.Multiplier, 1e-9)
	assert.Equal(t, time.Minute, worker.Budget.MaxInterval)
	assert.Zero(t, worker.Budget.Jitter)
}

func TestParse_RaisesInheritedCapToPollInterval(t *testing.T) {
	t.Parallel()

	src := `
defaults {
  poll_interval = "40s"
}

wait "web" {
  cluster = "prod"
  service = "web"
}

wait "worker" {
  cluster       = "prod"
  service       = "worker"
  poll_interval = "45s"
}
`
	targets, err := NewParser(waiter.DefaultBudgetConfig(), WithEnv(testEnv)).Parse([]byte(src), "waits.hcl")
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, 40*time.Second, targets[0].Budget.MaxInterval)
	assert.Equal(t, 45*time.Second, targets[1].Budget.PollInterval)
	assert.Equal(t, 45*time.Second, targets[1].Budget.MaxInterval)
}

func TestParse_Functions(t *testing.T) {
	t.Parallel()

	src := `
wait "api" {
  cluster = lookup(env, "MISSING_CLUSTER", "staging")
  service = format("%s-%s", "api", upper(env.STAGE))
  timeout = duration("90s")
}
`
	targets, err := NewParser(waiter.BudgetConfig{}, WithEnv(testEnv)).Parse([]byte(src), "waits.hcl")
	require.NoError(t, err)
	require.Len(t, targets, 1)

	assert.Equal(t, "staging", targets[0].Reference.Cluster)
	assert.Equal(t, "api-BLUE", targets[0].Reference.Service)
	assert.Equal(t, 90*time.Second, targets[0].Budget.Timeout)
	assert.Equal(t, waiter.DefaultPollInterval, targets[0].Budget.PollInterval)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `wait "web" {`,
			wantErr: "failed to parse",
		},
		{
			name:    "no waits",
			src:     `defaults { timeout = "1m" }`,
			wantErr: "declares no wait blocks",
		},
		{
			name:    "missing service",
			src:     `wait "web" { cluster = "prod" }`,
			wantErr: "failed to decode",
		},
		{
			name:    "unknown attribute",
			src:     waitBlock(`cluster = "prod"`, `service = "web"`, `retries = 3`),
			wantErr: "Unsupported argument",
		},
		{
			name:    "undefined env var",
			src:     waitBlock(`cluster = env.NOPE`, `service = "web"`),
			wantErr: "failed to decode",
		},
		{
			name: "duplicate wait",
			src: `
wait "web" {
  cluster = "prod"
  service = "web"
}
wait "web" {
  cluster = "prod"
  service = "web"
}`,
			wantErr: `duplicate wait "web"`,
		},
		{
			name:    "blank cluster",
			src:     waitBlock(`cluster = "  "`, `service = "web"`),
			wantErr: "cluster is required",
		},
		{
			name:    "bad duration",
			src:     waitBlock(`cluster = "prod"`, `service = "web"`, `timeout = "soon"`),
			wantErr: `invalid timeout "soon"`,
		},
		{
			name:    "negative duration in defaults",
			src:     `defaults { poll_interval = "-1s" }` + "\n" + waitBlock(`cluster = "prod"`, `service = "web"`),
			wantErr: "defaults: poll_interval must be positive",
		},
		{
			name:    "multiplier below one",
			src:     waitBlock(`cluster = "prod"`, `service = "web"`, `backoff_multiplier = 0.5`),
			wantErr: "backoff multiplier must be at least 1",
		},
		{
			name:    "explicit cap below interval",
			src:     waitBlock(`cluster = "prod"`, `service = "web"`, `poll_interval = "1m"`, `max_interval = "30s"`),
			wantErr: "max interval 30s is shorter than poll interval 1m0s",
		},
		{
			name:    "explicit default cap below interval",
			src:     `defaults { max_interval = "30s" }` + "\n" + waitBlock(`cluster = "prod"`, `service = "web"`, `poll_interval = "1m"`),
			wantErr: `wait "web": max interval 30s is shorter than poll interval 1m0s`,
		},
		{
			name:    "jitter out of range",
			src:     waitBlock(`cluster = "prod"`, `service = "web"`, `jitter = 1`),
			wantErr: "jitter must be in [0, 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewParser(waiter.DefaultBudgetConfig(), WithEnv(testEnv)).Parse([]byte(tt.src), "waits.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "waits.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
wait "web" {
  cluster = "prod"
  service = "web"
}
`), 0o600))

	targets, err := NewParser(waiter.DefaultBudgetConfig(), WithEnv(map[string]string{})).ParseFile(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "prod/web", targets[0].Reference.Key())

	_, err = NewParser(waiter.DefaultBudgetConfig()).ParseFile(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read wait file")
}

func TestNewParser_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("ECSWAIT_TEST_CLUSTER", "from-env")

	targets, err := NewParser(waiter.DefaultBudgetConfig()).Parse([]byte(`
wait "web" {
  cluster = env.ECSWAIT_TEST_CLUSTER
  service = "web"
}
`), "waits.hcl")
	require.NoError(t, err)
	assert.Equal(t, "from-env", targets[0].Reference.Cluster)
}
