// Package rules provides the CEL-Go based transaction risk rule engine.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine is the CEL-based transaction risk rule engine. Each rule produces
// a 0-100 score for one risk kind; the highest score per kind wins.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
	maxWorkers     int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRuleConfig
	Program cel.Program
}

// VelocityGetter returns the observed transaction count for an address in a
// time window.
type VelocityGetter func(ctx context.Context, organizationID, address string, windowSecs int) (int64, error)

// NewEngine creates a new rule evaluation engine.
func NewEngine(velocityGetter VelocityGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with transaction variables
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("blockchain", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("velocity_count", cel.IntType),
		cel.Variable("hour_of_day", cel.IntType),
		cel.Variable("input_count", cel.IntType),
		cel.Variable("output_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
		maxWorkers:     maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RiskRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RiskRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RiskRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the transaction data for rule evaluation.
type EvaluateInput struct {
	OrganizationID string
	TxID           string
	Subject        string
	Blockchain     string
	TxType         string
	Amount         float64
	Timestamp      time.Time
	InputCount     int
	OutputCount    int
	VelocityWindow int // seconds
}

// RuleScore is the outcome of one rule against one transaction.
type RuleScore struct {
	RuleID string
	Kind   domain.TransactionRiskKind
	Score  float64
	Err    string
}

// EvaluateAll evaluates all loaded rules in parallel and returns one score
// per rule. Evaluation errors produce a zero score for that rule only.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]RuleScore, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	// Get velocity count if getter is available
	var velocityCount int64
	if e.velocityGetter != nil && input.VelocityWindow > 0 {
		count, err := e.velocityGetter(ctx, input.OrganizationID, input.Subject, input.VelocityWindow)
		if err == nil {
			velocityCount = count
		}
	}

	hour := 0
	if !input.Timestamp.IsZero() {
		hour = input.Timestamp.UTC().Hour()
	}

	// Prepare CEL activation variables
	activation := map[string]any{
		"tx": map[string]any{
			"id":         input.TxID,
			"subject":    input.Subject,
			"blockchain": input.Blockchain,
			"type":       input.TxType,
			"amount":     input.Amount,
		},
		"amount":         input.Amount,
		"blockchain":     input.Blockchain,
		"tx_type":        input.TxType,
		"velocity_count": velocityCount,
		"hour_of_day":    hour,
		"input_count":    input.InputCount,
		"output_count":   input.OutputCount,
	}

	// Parallel evaluation using worker pool pattern
	results := make([]RuleScore, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

// EvaluateKinds evaluates all rules and folds the scores into one value per
// risk kind, keeping the highest score for each kind.
func (e *Engine) EvaluateKinds(ctx context.Context, input *EvaluateInput) (map[domain.TransactionRiskKind]float64, error) {
	scores, err := e.EvaluateAll(ctx, input)
	if err != nil {
		return nil, err
	}

	kinds := make(map[domain.TransactionRiskKind]float64)
	for _, s := range scores {
		if s.Err != "" {
			continue
		}
		if s.Score > kinds[s.Kind] {
			kinds[s.Kind] = s.Score
		}
	}
	return kinds, nil
}

// evaluateRule evaluates a single rule and returns its score.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) RuleScore {
	result := RuleScore{
		RuleID: rule.Config.ID,
		Kind:   rule.Config.Kind,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	result.Score = domain.ClampScore(toScore(out))
	return result
}

// toScore converts a CEL value to a numeric score. Boolean rules map to
// 100 when triggered.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 100.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RiskRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	// Load new rules
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RiskRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RiskRuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
