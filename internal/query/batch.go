package query

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"ragd/internal/domain"
)

// Batch runs Query for every question. Results keep input order; a failed
// question does not stop the batch. With a pool the questions run
// concurrently up to the pool capacity.
func (p *Pipeline) Batch(ctx context.Context, questions []string, topK int, useLLM bool) (domain.BatchResult, error) {
	if len(questions) == 0 {
		return domain.BatchResult{}, fmt.Errorf("%w: no questions provided", domain.ErrInvalidInput)
	}
	start := p.now()
	results := make([]domain.QueryResult, len(questions))

	if p.pool == nil {
		for i, q := range questions {
			results[i] = p.Query(ctx, q, topK, useLLM)
		}
	} else {
		var wg sync.WaitGroup
		wg.Add(len(questions))
		for i, q := range questions {
			p.pool.Go(func() {
				defer wg.Done()
				results[i] = p.Query(ctx, q, topK, useLLM)
			})
		}
		wg.Wait()
	}

	out := domain.BatchResult{
		Success:        true,
		Results:        results,
		QuestionsCount: len(questions),
	}
	failed := 0
	for _, r := range results {
		out.TotalMS += r.TotalMS
		if !r.Success {
			failed++
		}
	}
	out.TotalMS = math.Round(out.TotalMS*100) / 100
	out.ElapsedMS = p.since(start)
	p.log.Info("batch finished",
		zap.Int("questions", len(questions)),
		zap.Int("failed", failed),
		zap.Float64("elapsed_ms", out.ElapsedMS))
	return out, nil
}
