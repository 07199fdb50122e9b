package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/opensource-finance/harrier/internal/attribution"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/refdata"
	"github.com/opensource-finance/harrier/internal/rules"
)

var tracer = otel.Tracer("harrier-scoring")

// Service orchestrates attribution, the three factor calculators and the
// composite aggregator into full scoring runs. Results are cached but the
// cache is never the system of record.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	source domain.ChainSource
	ref    *refdata.Store
	rules  *rules.Engine
	cfg    domain.ScoringConfig

	entity       *EntityScorer
	jurisdiction *JurisdictionScorer
}

// NewService creates a scoring service. The weight precondition is checked
// here so no scoring ever runs with a broken configuration.
func NewService(repo domain.Repository, cache domain.Cache, source domain.ChainSource, ref *refdata.Store, engine *rules.Engine, cfg domain.ScoringConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring config: %w", err)
	}

	return &Service{
		repo:         repo,
		cache:        cache,
		source:       source,
		ref:          ref,
		rules:        engine,
		cfg:          cfg,
		entity:       NewEntityScorer(ref),
		jurisdiction: NewJurisdictionScorer(ref),
	}, nil
}

// ScoreAddress runs a full address-level scoring pass: attribution, entity
// and jurisdiction risk for the subject, then bounded graph traversal for
// counterparty exposure.
func (s *Service) ScoreAddress(ctx context.Context, organizationID, address string) (*domain.RiskScoringResult, error) {
	if organizationID == "" || address == "" {
		return nil, fmt.Errorf("organizationID and address are required")
	}

	cacheKey := "addr:" + address
	if cached := s.cachedResult(ctx, organizationID, cacheKey); cached != nil {
		return cached, nil
	}

	ctx, span := tracer.Start(ctx, "scoring.ScoreAddress")
	defer span.End()

	attr, err := s.resolveAttribution(ctx, address)
	if err != nil {
		return nil, err
	}

	entitySummary := s.entity.Score(attr, nil)
	jurSummary := s.jurisdiction.Score(attr.Countries)

	prop := NewPropagator(s.source, s.counterpartyScore, s.cfg.MaxHops, s.cfg.HopWeightDecay)
	trav, err := prop.TraverseAddress(ctx, organizationID, address, time.Time{})
	if err != nil {
		return nil, err
	}

	txSummary := buildTransactionSummary(trav, nil)

	result := &domain.RiskScoringResult{
		Subject:          address,
		AnalysisType:     domain.AnalysisAddress,
		EntityRisk:       entitySummary,
		JurisdictionRisk: jurSummary,
		TransactionRisk:  txSummary,
		OverallRisk: Composite(
			entitySummary.AggregateScore,
			jurSummary.AggregateScore,
			txSummary.AggregateScore,
			s.cfg.Weights,
		),
		Partial: trav.Partial,
	}

	s.storeResult(ctx, organizationID, cacheKey, result)
	return result, nil
}

// ScoreTransaction runs a full transaction-level scoring pass: endpoint
// attribution for entity and jurisdiction risk, rule evaluation for the
// amount/pattern/timing kinds, and graph traversal seeded by the transaction.
func (s *Service) ScoreTransaction(ctx context.Context, organizationID, txID string) (*domain.RiskScoringResult, error) {
	if organizationID == "" || txID == "" {
		return nil, fmt.Errorf("organizationID and txID are required")
	}

	cacheKey := "tx:" + txID
	if cached := s.cachedResult(ctx, organizationID, cacheKey); cached != nil {
		return cached, nil
	}

	ctx, span := tracer.Start(ctx, "scoring.ScoreTransaction")
	defer span.End()

	tx, err := s.source.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seed transaction: %w", err)
	}

	partial := false

	// Entity and jurisdiction risk come from the transaction's endpoints;
	// the riskiest attributed endpoint dominates.
	var entitySummary domain.EntityRiskSummary
	var countries []string

	for _, address := range endpointAddresses(tx) {
		attr, err := s.resolveAttribution(ctx, address)
		if err != nil {
			partial = true
			continue
		}
		if !attr.Attributed {
			continue
		}

		factor := s.entity.Factor(attr, nil)
		entitySummary.Factors = append(entitySummary.Factors, factor)
		if factor.Score > entitySummary.AggregateScore {
			entitySummary.AggregateScore = factor.Score
		}
		countries = append(countries, attr.Countries...)
	}

	jurSummary := s.jurisdiction.Score(countries)

	// Rule-derived kinds evaluated against the seed transaction.
	var kinds map[domain.TransactionRiskKind]float64
	if s.rules != nil {
		subject := ""
		if len(tx.Inputs) > 0 {
			subject = tx.Inputs[0].Address
		}
		kinds, err = s.rules.EvaluateKinds(ctx, &rules.EvaluateInput{
			OrganizationID: organizationID,
			TxID:           tx.Hash,
			Subject:        subject,
			Blockchain:     tx.Blockchain,
			Amount:         tx.Amount,
			Timestamp:      tx.Timestamp,
			InputCount:     len(tx.Inputs),
			OutputCount:    len(tx.Outputs),
			VelocityWindow: s.cfg.VelocityWindow,
		})
		if err != nil {
			return nil, err
		}
	}

	prop := NewPropagator(s.source, s.counterpartyScore, s.cfg.MaxHops, s.cfg.HopWeightDecay)
	trav, err := prop.TraverseTransaction(ctx, organizationID, tx, time.Time{})
	if err != nil {
		return nil, err
	}

	txSummary := buildTransactionSummary(trav, kinds)

	result := &domain.RiskScoringResult{
		Subject:          txID,
		AnalysisType:     domain.AnalysisTransaction,
		EntityRisk:       entitySummary,
		JurisdictionRisk: jurSummary,
		TransactionRisk:  txSummary,
		OverallRisk: Composite(
			entitySummary.AggregateScore,
			jurSummary.AggregateScore,
			txSummary.AggregateScore,
			s.cfg.Weights,
		),
		Partial: partial || trav.Partial,
	}

	s.storeResult(ctx, organizationID, cacheKey, result)
	return result, nil
}

// counterpartyScore is the CounterpartyScorer used during traversal: direct
// entity and jurisdiction risk only, worst of the two.
func (s *Service) counterpartyScore(ctx context.Context, organizationID, address string) (float64, error) {
	attr, err := s.resolveAttribution(ctx, address)
	if err != nil {
		return 0, err
	}

	entity := s.entity.Score(attr, nil)
	jur := s.jurisdiction.Score(attr.Countries)
	return math.Max(entity.AggregateScore, jur.AggregateScore), nil
}

func (s *Service) resolveAttribution(ctx context.Context, address string) (*domain.ResolvedAttribution, error) {
	records, err := s.repo.GetAttributionRecords(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to load attribution records: %w", err)
	}
	return attribution.Resolve(address, records), nil
}

func (s *Service) cachedResult(ctx context.Context, organizationID, key string) *domain.RiskScoringResult {
	if s.cache == nil {
		return nil
	}
	result, err := s.cache.GetScore(ctx, organizationID, key)
	if err != nil {
		return nil
	}
	return result
}

func (s *Service) storeResult(ctx context.Context, organizationID, key string, result *domain.RiskScoringResult) {
	if s.cache == nil {
		return
	}
	ttl := time.Duration(s.cfg.CacheTTL) * time.Second
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	_ = s.cache.SetScore(ctx, organizationID, key, result, ttl)
}

// buildTransactionSummary folds traversal hops and rule kind scores into one
// factor per risk kind. The collection aggregate is the clamped sum of kind
// scores.
func buildTransactionSummary(trav *TraversalResult, kinds map[domain.TransactionRiskKind]float64) domain.TransactionRiskSummary {
	summary := domain.TransactionRiskSummary{}

	appendFactor := func(kind domain.TransactionRiskKind, score float64, hops []domain.Hop) {
		if score == 0 && len(hops) == 0 {
			return
		}
		summary.Factors = append(summary.Factors, domain.TransactionRiskFactor{
			RiskFactor: domain.RiskFactor{
				Score:       score,
				Severity:    domain.SeverityForScore(score),
				Description: fmt.Sprintf("%s risk", kind),
			},
			Kind: kind,
			Hops: hops,
		})
		summary.AggregateScore += score
	}

	appendFactor(domain.RiskKindAmount, kinds[domain.RiskKindAmount], nil)
	appendFactor(domain.RiskKindSender, HopContribution(trav.SenderHops), trav.SenderHops)
	appendFactor(domain.RiskKindReceiver, HopContribution(trav.ReceiverHops), trav.ReceiverHops)
	appendFactor(domain.RiskKindPattern, kinds[domain.RiskKindPattern], nil)
	appendFactor(domain.RiskKindTiming, kinds[domain.RiskKindTiming], nil)

	summary.AggregateScore = domain.ClampScore(summary.AggregateScore)
	return summary
}

func endpointAddresses(tx *domain.ChainTransaction) []string {
	seen := make(map[string]bool)
	var addrs []string
	for _, in := range tx.Inputs {
		if in.Address != "" && !seen[in.Address] {
			seen[in.Address] = true
			addrs = append(addrs, in.Address)
		}
	}
	for _, out := range tx.Outputs {
		if out.Address != "" && !seen[out.Address] {
			seen[out.Address] = true
			addrs = append(addrs, out.Address)
		}
	}
	return addrs
}
