package scoring

import (
	"context"
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// CounterpartyScorer returns the direct risk score of a counterparty
// address. Counterparties are scored for entity and jurisdiction risk only,
// never re-traversed.
type CounterpartyScorer func(ctx context.Context, organizationID, address string) (float64, error)

// TraversalResult holds the decayed hop contributions discovered while
// walking the transaction graph, split by direction relative to the subject.
type TraversalResult struct {
	SenderHops   []domain.Hop
	ReceiverHops []domain.Hop

	// Partial is set when the chain source failed for part of the walk and
	// the missing hops were treated as zero contribution.
	Partial bool
}

// Propagator walks the transaction graph with bounded BFS. Each counterparty
// at hop level h contributes its direct score weighted by decay^h. A visited
// set guarantees termination on cyclic and diamond-shaped graphs.
type Propagator struct {
	source  domain.ChainSource
	scorer  CounterpartyScorer
	maxHops int
	decay   float64
	txLimit int
}

// NewPropagator creates a graph propagator.
func NewPropagator(source domain.ChainSource, scorer CounterpartyScorer, maxHops int, decay float64) *Propagator {
	return &Propagator{
		source:  source,
		scorer:  scorer,
		maxHops: maxHops,
		txLimit: 50,
		decay:   decay,
	}
}

type frontierNode struct {
	address    string
	senderSide bool
	isRoot     bool
}

// TraverseAddress walks the graph outward from a subject address.
// maxHops of zero disables traversal entirely.
func (p *Propagator) TraverseAddress(ctx context.Context, organizationID, root string, since time.Time) (*TraversalResult, error) {
	res := &TraversalResult{}
	if p.maxHops == 0 || p.source == nil {
		return res, nil
	}

	visited := map[string]bool{root: true}
	frontier := []frontierNode{{address: root, isRoot: true}}

	return p.expand(ctx, organizationID, frontier, 1, since, visited, res)
}

// TraverseTransaction walks the graph outward from a seed transaction. The
// transaction's own inputs and outputs are the hop-1 counterparties.
func (p *Propagator) TraverseTransaction(ctx context.Context, organizationID string, tx *domain.ChainTransaction, since time.Time) (*TraversalResult, error) {
	res := &TraversalResult{}
	if p.maxHops == 0 || tx == nil {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	weight := p.decay
	var frontier []frontierNode

	for _, in := range tx.Inputs {
		if in.Address == "" || visited[in.Address] {
			continue
		}
		visited[in.Address] = true
		if hop, ok := p.scoreHop(ctx, organizationID, in.Address, tx.Hash, 1, weight, res); ok {
			res.SenderHops = append(res.SenderHops, hop)
			frontier = append(frontier, frontierNode{address: in.Address, senderSide: true})
		}
	}
	for _, out := range tx.Outputs {
		if out.Address == "" || visited[out.Address] {
			continue
		}
		visited[out.Address] = true
		if hop, ok := p.scoreHop(ctx, organizationID, out.Address, tx.Hash, 1, weight, res); ok {
			res.ReceiverHops = append(res.ReceiverHops, hop)
			frontier = append(frontier, frontierNode{address: out.Address, senderSide: false})
		}
	}

	return p.expand(ctx, organizationID, frontier, 2, since, visited, res)
}

// expand runs BFS levels startLevel..maxHops. Context cancellation is
// honored between hop levels.
func (p *Propagator) expand(ctx context.Context, organizationID string, frontier []frontierNode, startLevel int, since time.Time, visited map[string]bool, res *TraversalResult) (*TraversalResult, error) {
	if p.source == nil {
		return res, nil
	}

	for level := startLevel; level <= p.maxHops && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		weight := math.Pow(p.decay, float64(level))
		var next []frontierNode

		for _, n := range frontier {
			txs, err := p.source.GetAddressTransactions(ctx, n.address, since, p.txLimit)
			if err != nil {
				res.Partial = true
				continue
			}

			for _, tx := range txs {
				senders, receivers := tx.Counterparties(n.address)

				for _, addr := range senders {
					if visited[addr] {
						continue
					}
					visited[addr] = true

					side := n.senderSide
					if n.isRoot {
						side = true
					}
					if hop, ok := p.scoreHop(ctx, organizationID, addr, tx.Hash, level, weight, res); ok {
						if side {
							res.SenderHops = append(res.SenderHops, hop)
						} else {
							res.ReceiverHops = append(res.ReceiverHops, hop)
						}
						next = append(next, frontierNode{address: addr, senderSide: side})
					}
				}

				for _, addr := range receivers {
					if visited[addr] {
						continue
					}
					visited[addr] = true

					side := n.senderSide
					if n.isRoot {
						side = false
					}
					if hop, ok := p.scoreHop(ctx, organizationID, addr, tx.Hash, level, weight, res); ok {
						if side {
							res.SenderHops = append(res.SenderHops, hop)
						} else {
							res.ReceiverHops = append(res.ReceiverHops, hop)
						}
						next = append(next, frontierNode{address: addr, senderSide: side})
					}
				}
			}
		}

		frontier = next
	}

	return res, nil
}

func (p *Propagator) scoreHop(ctx context.Context, organizationID, address, txHash string, level int, weight float64, res *TraversalResult) (domain.Hop, bool) {
	score, err := p.scorer(ctx, organizationID, address)
	if err != nil {
		res.Partial = true
		return domain.Hop{}, false
	}
	return domain.Hop{
		TxHash:    txHash,
		RiskScore: score,
		HopLevel:  level,
		Weight:    weight,
	}, true
}

// HopContribution returns the decayed sum of hop contributions, clamped.
func HopContribution(hops []domain.Hop) float64 {
	sum := 0.0
	for _, h := range hops {
		sum += h.RiskScore * h.Weight
	}
	return domain.ClampScore(sum)
}
