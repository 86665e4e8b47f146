package main

import (
	"time"

	"github.com/jackzampolin/collate/internal/cleanup"
	"github.com/jackzampolin/collate/internal/config"
	"github.com/jackzampolin/collate/internal/harmonize"
	"github.com/jackzampolin/collate/internal/review"
	"github.com/jackzampolin/collate/internal/sweep"
)

func newHarmonizer(cfg *config.Config) (*harmonize.Harmonizer, error) {
	hc := cfg.Harmonizer
	lex := harmonize.DefaultWordList()
	if hc.LexiconPath != "" {
		var err error
		if lex, err = harmonize.LoadWordList(config.ResolveEnvVars(hc.LexiconPath)); err != nil {
			return nil, err
		}
	}
	scorer := harmonize.NewLexiconScorer(harmonize.Weights{
		CharClass: hc.Weights.CharClass,
		Lexicon:   hc.Weights.Lexicon,
		CaseShape: hc.Weights.CaseShape,
		Length:    hc.Weights.Length,
	}, lex)
	return harmonize.New(harmonize.Options{
		Margin:                 hc.Margin,
		MinScore:               hc.MinScore,
		SingleSourceConfidence: hc.SingleSourceConfidence,
		SingleSourceThreshold:  hc.SingleSourceThreshold,
		MinLineSimilarity:      hc.MinLineSimilarity,
	}, scorer), nil
}

func newCleaner(cfg *config.Config) *cleanup.Cleaner {
	fixes := make([]cleanup.Fix, 0, len(cfg.Cleanup.CommonFixes))
	for _, f := range cfg.Cleanup.CommonFixes {
		fixes = append(fixes, cleanup.Fix{From: f.From, To: f.To})
	}
	return cleanup.New(fixes)
}

func newAggregator(e *env) (*review.Aggregator, error) {
	opts := review.Options{Logger: logger}
	if e.cfg.Review.SingleWriter {
		opts.LockDir = e.home.AggregatorLockDir()
		opts.LockWait = time.Duration(e.cfg.Review.LockWaitSeconds) * time.Second
	}
	return review.New(opts)
}

// queuePath is the consolidated review queue location.
func queuePath(e *env) string {
	if p := e.cfg.Review.QueuePath; p != "" {
		return config.ResolveEnvVars(p)
	}
	return e.home.ReviewQueuePath()
}

func newSweeper(e *env, force bool) (*sweep.Sweeper, error) {
	h, err := newHarmonizer(e.cfg)
	if err != nil {
		return nil, err
	}
	agg, err := newAggregator(e)
	if err != nil {
		return nil, err
	}
	return sweep.New(sweep.Config{
		Home:       e.home,
		Harmonizer: h,
		Cleaner:    newCleaner(e.cfg),
		Aggregator: agg,
		QueuePath:  queuePath(e),
		Force:      force || e.cfg.Sweep.Force,
		Logger:     logger,
	})
}
