// Package query answers questions against the active engine: retrieval,
// optional answer generation and result assembly.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragd/internal/domain"
	"ragd/internal/logger"
	"ragd/internal/progress"
	"ragd/internal/workerpool"
)

// SystemPrompt instructs the model to reason first and answer last.
const SystemPrompt = `As an advanced reading comprehension assistant, your task is to analyze text passages and corresponding questions meticulously. Your response start after "Thought: ", where you will methodically break down the reasoning process, illustrating how you arrive at conclusions. Conclude with "Answer: " to present a concise, definitive response, devoid of additional elaborations.`

const answerMarker = "Answer:"

// EngineSource exposes the active engine and its configuration. The engine
// is nil when nothing is indexed or loaded.
type EngineSource interface {
	Active() (domain.Engine, domain.EngineConfig)
}

// LanguageSource hands out the shared language model.
type LanguageSource interface {
	LanguageModel(name string) (domain.LanguageModel, error)
}

type Options struct {
	// LLMModel is used when the active configuration names no model.
	LLMModel          string
	GenerationTimeout time.Duration
}

type Pipeline struct {
	engines EngineSource
	models  LanguageSource
	tracker *progress.Tracker
	pool    *workerpool.Pool
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

// NewPipeline builds a pipeline. A nil pool runs batches sequentially.
func NewPipeline(engines EngineSource, models LanguageSource, tracker *progress.Tracker, pool *workerpool.Pool, opts Options, log *zap.Logger) *Pipeline {
	return &Pipeline{
		engines: engines,
		models:  models,
		tracker: tracker,
		pool:    pool,
		opts:    opts,
		log:     logger.Module(log, "query"),
		now:     time.Now,
	}
}

// Query answers one question. Failures are reported in the result.
func (p *Pipeline) Query(ctx context.Context, question string, topK int, useLLM bool) domain.QueryResult {
	start := p.now()
	res := domain.QueryResult{Question: question, Documents: []domain.RetrievedDocument{}}

	eng, cfg := p.engines.Active()
	if eng == nil {
		return p.fail(res, start, domain.ErrIndexNotBuilt)
	}
	if strings.TrimSpace(question) == "" {
		return p.fail(res, start, fmt.Errorf("%w: empty question", domain.ErrInvalidInput))
	}
	p.tracker.SetQueryStatus(domain.StatusQuerying)

	retrievalStart := p.now()
	results, err := eng.Retrieve(ctx, []domain.RetrievalQuery{{Question: question}})
	if err == nil && len(results) != 1 {
		err = fmt.Errorf("engine returned %d results for 1 query", len(results))
	}
	if err != nil {
		p.log.Error("retrieval failed", zap.String("question", question), zap.Error(err))
		return p.fail(res, start, fmt.Errorf("retrieval: %w", err))
	}
	res.Documents = documents(results[0], topK)
	res.RetrievalMS = p.since(retrievalStart)

	if useLLM {
		p.generate(ctx, &res, cfg, question, results[0].SortedPassages, topK)
	}

	res.Success = true
	res.TotalMS = p.since(start)
	if !res.Degraded {
		p.tracker.SetQueryStatus(domain.StatusCompleted)
	}
	return res
}

// generate fills answer and thought. Errors degrade the result to documents only.
func (p *Pipeline) generate(ctx context.Context, res *domain.QueryResult, cfg domain.EngineConfig, question string, passages []string, topK int) {
	start := p.now()
	answer, err := p.infer(ctx, cfg, question, passages, topK)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err)
		p.log.Warn("generation failed, returning documents only", zap.String("question", question), zap.Error(err))
		res.Degraded = true
		res.Err = err
		res.Error = err.Error()
		p.tracker.FailQuery(err)
		return
	}
	elapsed := p.since(start)
	res.GenerationMS = &elapsed

	thought, ans, found := ParseAnswer(answer)
	res.Answer = &ans
	if found {
		res.Thought = &thought
	}
}

func (p *Pipeline) infer(ctx context.Context, cfg domain.EngineConfig, question string, passages []string, topK int) (string, error) {
	if p.models == nil {
		return "", errors.New("answer generation is disabled")
	}
	name := cfg.LLMModel
	if name == "" {
		name = p.opts.LLMModel
	}
	lm, err := p.models.LanguageModel(name)
	if err != nil {
		return "", err
	}
	if p.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.GenerationTimeout)
		defer cancel()
	}
	return lm.Infer(ctx, Messages(question, passages, topK))
}

// Messages builds the prompt from the first topK passages in rank order.
func Messages(question string, passages []string, topK int) []domain.Message {
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	var b strings.Builder
	for _, passage := range passages {
		b.WriteString(passage)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n Thought: ", question)
	return []domain.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// ParseAnswer splits a model response at the first "Answer:" marker. Without
// a marker the whole response is the answer and found is false.
func ParseAnswer(response string) (thought, answer string, found bool) {
	before, after, found := strings.Cut(response, answerMarker)
	if !found {
		return "", strings.TrimSpace(response), false
	}
	return strings.TrimSpace(before), strings.TrimSpace(after), true
}

func documents(r domain.RetrievalResult, topK int) []domain.RetrievedDocument {
	n := len(r.SortedPassages)
	if topK > 0 {
		n = min(n, topK)
	}
	docs := make([]domain.RetrievedDocument, n)
	for i := range docs {
		content := r.SortedPassages[i]
		docs[i] = domain.RetrievedDocument{Content: content, ID: domain.PassageID(content)}
		if i < len(r.SortedScores) {
			docs[i].Score = r.SortedScores[i]
		}
	}
	return docs
}

func (p *Pipeline) fail(res domain.QueryResult, start time.Time, err error) domain.QueryResult {
	res.Success = false
	res.Err = err
	res.Error = err.Error()
	res.TotalMS = p.since(start)
	p.tracker.FailQuery(err)
	return res
}

func (p *Pipeline) since(t time.Time) float64 {
	return roundMS(p.now().Sub(t))
}

func roundMS(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
