// Package screen grades a project's roster against a screener rubric in
// bulk. Items run in parallel under a concurrency cap and a shared rate
// limit; one expert's failure never fails the batch.
package screen

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/expert-registry/internal/extract"
	"github.com/sells-group/expert-registry/internal/model"
	"github.com/sells-group/expert-registry/internal/store"
)

const (
	// DefaultConcurrency bounds in-flight screening calls.
	DefaultConcurrency = 5

	// defaultRequestsPerSecond paces calls to the collaborator.
	defaultRequestsPerSecond = 2
)

// Options tunes the runner.
type Options struct {
	Concurrency       int
	RequestsPerSecond float64
	Hypothesis        string
}

// ItemResult is the outcome for one expert.
type ItemResult struct {
	ExpertID   string
	ExpertName string
	Result     *model.ScreeningResult
	Err        error
}

// Summary aggregates one bulk run.
type Summary struct {
	Screened int
	Failed   int
	Skipped  int
	Results  []ItemResult
}

// Runner screens rosters in bulk.
type Runner struct {
	store    store.Store
	screener extract.Screener
	opts     Options
}

// New builds a runner.
func New(s store.Store, screener extract.Screener, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	return &Runner{store: s, screener: screener, opts: opts}
}

// Run screens every expert in the project. Already-screened experts are
// skipped unless force is set. Grades persist per expert as they arrive,
// so a partially failed run still keeps its successes.
func (r *Runner) Run(ctx context.Context, projectID string, rubric model.Rubric, force bool) (*Summary, error) {
	experts, err := r.store.ListExperts(ctx, store.ExpertFilter{ProjectID: projectID})
	if err != nil {
		return nil, eris.Wrap(err, "screen: list experts")
	}

	summary := &Summary{}
	var todo []model.ExpertRecord
	for _, e := range experts {
		if !force && e.ScreeningGrade != "" {
			summary.Skipped++
			continue
		}
		todo = append(todo, e)
	}

	limiter := rate.NewLimiter(rate.Limit(r.opts.RequestsPerSecond), 1)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, expert := range todo {
		expert := expert
		g.Go(func() error {
			item := r.screenOne(gctx, limiter, expert, rubric)

			mu.Lock()
			defer mu.Unlock()
			if item.Err != nil {
				summary.Failed++
			} else {
				summary.Screened++
			}
			summary.Results = append(summary.Results, item)
			// item failures are isolated; only group-context cancellation
			// stops the batch
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "screen: batch")
	}

	zap.L().Info("bulk screening finished",
		zap.String("project_id", projectID),
		zap.Int("screened", summary.Screened),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Runner) screenOne(ctx context.Context, limiter *rate.Limiter, expert model.ExpertRecord, rubric model.Rubric) ItemResult {
	item := ItemResult{ExpertID: expert.ID, ExpertName: expert.CanonicalName}

	if err := limiter.Wait(ctx); err != nil {
		item.Err = err
		return item
	}

	bio, screenerText := r.sourceContext(ctx, expert.ID)

	result, err := r.screener.Screen(ctx, extract.ScreenRequest{
		Name:              expert.CanonicalName,
		Employer:          expert.CanonicalEmployer,
		Title:             expert.CanonicalTitle,
		Bio:               bio,
		ScreenerResponses: screenerText,
		Rubric:            rubric,
		Hypothesis:        r.opts.Hypothesis,
	})
	if err != nil {
		zap.L().Warn("screening failed",
			zap.String("expert_id", expert.ID),
			zap.String("expert_name", expert.CanonicalName),
			zap.Error(err))
		item.Err = eris.Wrapf(err, "screen expert %s", expert.ID)
		return item
	}

	if err := r.store.UpdateScreening(ctx, expert.ID, *result); err != nil {
		item.Err = eris.Wrapf(err, "persist screening for %s", expert.ID)
		return item
	}

	item.Result = result
	return item
}

// sourceContext assembles bio and screener text from the expert's most
// recent source. Best effort: screening proceeds without it.
func (r *Runner) sourceContext(ctx context.Context, expertID string) (bio, screener string) {
	sources, err := r.store.ListSources(ctx, expertID)
	if err != nil || len(sources) == 0 {
		return "", ""
	}

	latest := sources[0]
	for _, s := range sources[1:] {
		if s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}

	screener = latest.ScreenerJSON
	bio = latest.Bio
	if bio == "" {
		for _, s := range sources {
			if s.Bio != "" {
				bio = s.Bio
				break
			}
		}
	}
	if screener == "" {
		for _, s := range sources {
			if s.ScreenerJSON != "" {
				screener = s.ScreenerJSON
				break
			}
		}
	}
	return bio, screener
}
