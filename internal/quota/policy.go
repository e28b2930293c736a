package quota

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

//go:embed policies/*.rego
var builtinPolicies embed.FS

const policyQuery = "[data.relay.quota.allow, data.relay.quota.reason]"

// PolicyInput is the document the admission policy is evaluated against.
type PolicyInput struct {
	User      PolicyUser      `json:"user"`
	Request   PolicyRequest   `json:"request"`
	Plan      PolicyPlan      `json:"plan"`
	Usage     Usage           `json:"usage"`
	RateLimit PolicyRateLimit `json:"rate_limit"`
	Time      PolicyTime      `json:"time"`
}

type PolicyUser struct {
	ID   string `json:"id"`
	Team string `json:"team"`
}

// PolicyRequest carries the explicitly requested backend; it is empty for
// automatically routed requests.
type PolicyRequest struct {
	Backend string `json:"backend"`
}

type PolicyPlan struct {
	Name            string   `json:"name"`
	DailyRequests   int      `json:"daily_requests"`
	MonthlyTokens   int64    `json:"monthly_tokens"`
	AllowedBackends []string `json:"allowed_backends"`
	Expired         bool     `json:"expired"`
}

type PolicyRateLimit struct {
	Allowed   bool  `json:"allowed"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

type PolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Policy evaluates admission decisions with OPA.
type Policy struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	timeout  func() time.Duration
}

// NewPolicy creates an evaluator. Call LoadDefault, Load or LoadFromModules
// before evaluating.
func NewPolicy(timeout func() time.Duration) *Policy {
	return &Policy{timeout: timeout}
}

// LoadDefault compiles the built-in quota policy.
func (p *Policy) LoadDefault() error {
	entries, err := builtinPolicies.ReadDir("policies")
	if err != nil {
		return fmt.Errorf("read builtin policies: %w", err)
	}
	modules := make(map[string]string, len(entries))
	for _, entry := range entries {
		data, err := builtinPolicies.ReadFile("policies/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read builtin policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(data)
	}
	return p.LoadFromModules(modules)
}

// Load compiles every .rego file in dir. An empty dir falls back to the
// built-in policy.
func (p *Policy) Load(dir string) error {
	if dir == "" {
		return p.LoadDefault()
	}
	modules, err := LoadRegoFiles(dir)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found, using built-in quota policy", "path", dir)
		return p.LoadDefault()
	}
	if err := p.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("quota policies loaded", "path", dir, "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from the given module sources.
func (p *Policy) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(policyQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	p.mu.Lock()
	p.prepared = &prepared
	p.mu.Unlock()
	return nil
}

// Evaluate runs the policy. Without a compiled policy every request is denied.
func (p *Policy) Evaluate(ctx context.Context, input PolicyInput) (bool, string, error) {
	p.mu.RLock()
	prepared := p.prepared
	p.mu.RUnlock()

	if prepared == nil {
		return false, "no policies loaded", nil
	}

	timeout := 100 * time.Millisecond
	if p.timeout != nil && p.timeout() > 0 {
		timeout = p.timeout()
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, "policy evaluation error", fmt.Errorf("evaluate quota policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	arr, ok := results[0].Expressions[0].Value.([]any)
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}

// LoadRegoFiles reads all .rego files from the given directory.
func LoadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
