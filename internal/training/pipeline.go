package training

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/bookline-ai-platform/internal/abtest"
	"github.com/wolfman30/bookline-ai-platform/pkg/logging"
)

var ErrAlreadyRunning = errors.New("training: a retraining run is already in progress")

type miner interface {
	Mine(ctx context.Context, since time.Time, opts Options) (*MiningResult, error)
}

type trainerClient interface {
	Train(ctx context.Context, modelVersion string, corpus []byte) (string, error)
}

type evaluatorClient interface {
	Evaluate(ctx context.Context, modelVersion string, holdout []Example, since time.Time) (*Evaluation, error)
}

type corpusUploader interface {
	Upload(ctx context.Context, modelVersion string, corpus []byte, exampleCount int) (string, error)
}

type performanceLedger interface {
	Insert(ctx context.Context, rec PerformanceRecord) error
	Latest(ctx context.Context) (*PerformanceRecord, error)
	SetActiveABTest(ctx context.Context, modelVersion string, active bool) error
}

type experimentRegistrar interface {
	CreateExperiment(ctx context.Context, name, controlVersion, candidateVersion string, split float64) (*abtest.Experiment, error)
	CurrentVersion(ctx context.Context) (string, error)
}

type feedbackMarker interface {
	MarkReviewed(ctx context.Context, feedbackIDs []string) error
}

type jobLedger interface {
	PutRunning(ctx context.Context, job *JobRecord) error
	SetStage(ctx context.Context, jobID, stage string) error
	MarkCompleted(ctx context.Context, jobID string, rec *JobRecord) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	MarkSkipped(ctx context.Context, jobID, reason string) error
}

type operatorNotifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// PipelineConfig tunes one retraining run.
type PipelineConfig struct {
	MinNewDataPoints int
	QualityGate      float64
	ABSplit          float64
	HoldoutFraction  float64
	DefaultVersion   string
}

// Pipeline runs the full retraining cycle: mine, build and archive the
// corpus, train, evaluate against a holdout, and on passing the quality
// gate start a canary experiment for the new version. At most one run is
// in flight at a time.
type Pipeline struct {
	miner       miner
	trainer     trainerClient
	evaluator   evaluatorClient
	corpus      corpusUploader
	performance performanceLedger
	experiments experimentRegistrar
	feedback    feedbackMarker
	jobs        jobLedger
	notifier    operatorNotifier
	logger      *logging.Logger
	cfg         PipelineConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewPipeline(
	m miner,
	trainer trainerClient,
	evaluator evaluatorClient,
	corpus corpusUploader,
	performance performanceLedger,
	experiments experimentRegistrar,
	fb feedbackMarker,
	jobs jobLedger,
	notifier operatorNotifier,
	logger *logging.Logger,
	cfg PipelineConfig,
) *Pipeline {
	if m == nil {
		panic("training: miner cannot be nil")
	}
	if trainer == nil {
		panic("training: trainer cannot be nil")
	}
	if evaluator == nil {
		panic("training: evaluator cannot be nil")
	}
	if performance == nil {
		panic("training: performance ledger cannot be nil")
	}
	if experiments == nil {
		panic("training: experiment registrar cannot be nil")
	}
	if fb == nil {
		panic("training: feedback marker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MinNewDataPoints <= 0 {
		cfg.MinNewDataPoints = 50
	}
	if cfg.QualityGate <= 0 {
		cfg.QualityGate = 0.8
	}
	if cfg.ABSplit <= 0 || cfg.ABSplit > 0.1 {
		cfg.ABSplit = 0.1
	}
	if cfg.HoldoutFraction <= 0 || cfg.HoldoutFraction >= 0.5 {
		cfg.HoldoutFraction = 0.2
	}
	return &Pipeline{
		miner:       m,
		trainer:     trainer,
		evaluator:   evaluator,
		corpus:      corpus,
		performance: performance,
		experiments: experiments,
		feedback:    fb,
		jobs:        jobs,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
	}
}

// TriggerParams carry per-run overrides from whoever requested the run.
type TriggerParams struct {
	// Source names the requester, e.g. "manual", "scheduled" or "cli".
	Source string
	// MinNewDataPoints overrides the configured floor for this run.
	// Zero keeps the configured value.
	MinNewDataPoints int
}

// Trigger starts a retraining run in the background and returns its job
// ID. A second trigger while one is running returns ErrAlreadyRunning.
func (p *Pipeline) Trigger(params TriggerParams) (string, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	jobID := uuid.NewString()
	go func() {
		defer func() {
			cancel()
			p.mu.Lock()
			p.running = false
			p.cancel = nil
			p.mu.Unlock()
		}()
		if err := p.Run(ctx, jobID, params); err != nil {
			p.logger.Error("retraining run failed", "job_id", jobID, "error", err)
		}
	}()
	return jobID, nil
}

// Stop cancels the in-flight run, if any. The current stage finishes its
// cancellation path and the job is marked failed.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Running reports whether a run is in flight.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run executes the pipeline synchronously. Used directly by the retrain
// command; the HTTP trigger goes through Trigger.
func (p *Pipeline) Run(ctx context.Context, jobID string, params TriggerParams) error {
	p.recordStart(ctx, jobID, params)

	minPoints := params.MinNewDataPoints
	if minPoints <= 0 {
		minPoints = p.cfg.MinNewDataPoints
	}

	since := p.lastTrainedAt(ctx)
	p.stage(ctx, jobID, "mine")
	mined, err := p.miner.Mine(ctx, since, Options{
		IncludeNegativeFeedback: true,
		IncludeFallbackCases:    true,
	})
	if err != nil {
		return p.fail(ctx, jobID, fmt.Errorf("training: mining stage: %w", err))
	}

	if len(mined.Examples) < minPoints {
		reason := fmt.Sprintf("only %d new examples, need %d", len(mined.Examples), minPoints)
		p.logger.Info("retraining skipped", "job_id", jobID, "reason", reason)
		if p.jobs != nil {
			if err := p.jobs.MarkSkipped(ctx, jobID, reason); err != nil {
				p.logger.Warn("job skip record failed", "job_id", jobID, "error", err)
			}
		}
		return nil
	}

	modelVersion := newModelVersion()
	trainSet, holdout := SplitHoldout(mined.Examples, p.cfg.HoldoutFraction)

	p.stage(ctx, jobID, "corpus")
	corpus, err := BuildCorpus(trainSet)
	if err != nil {
		return p.fail(ctx, jobID, fmt.Errorf("training: corpus stage: %w", err))
	}
	if p.corpus != nil {
		if _, err := p.corpus.Upload(ctx, modelVersion, corpus, len(trainSet)); err != nil {
			// Archival failure is not fatal; the trainer gets the corpus inline.
			p.logger.Warn("corpus archive failed", "job_id", jobID, "error", err)
		}
	}

	p.stage(ctx, jobID, "train")
	trainedVersion, err := p.trainer.Train(ctx, modelVersion, corpus)
	if err != nil {
		p.notify(ctx, "Retraining failed",
			fmt.Sprintf("Job %s failed during training: %v", jobID, err))
		return p.fail(ctx, jobID, err)
	}

	p.stage(ctx, jobID, "evaluate")
	eval := &Evaluation{}
	if len(holdout) > 0 {
		eval, err = p.evaluator.Evaluate(ctx, trainedVersion, holdout, since)
		if err != nil {
			return p.fail(ctx, jobID, fmt.Errorf("training: evaluation stage: %w", err))
		}
	}
	accuracy := eval.Accuracy

	passed := accuracy >= p.cfg.QualityGate
	if err := p.performance.Insert(ctx, PerformanceRecord{
		ModelVersion:         trainedVersion,
		TrainedAt:            time.Now().UTC(),
		DataPoints:           len(mined.Examples),
		Accuracy:             accuracy,
		BookingSuccessRate:   eval.BookingSuccessRate,
		AvgConversationTurns: eval.AvgConversationTurns,
		PassedGate:           passed,
	}); err != nil {
		p.logger.Warn("performance record insert failed", "job_id", jobID, "error", err)
	}

	record := &JobRecord{
		ModelVersion: trainedVersion,
		DataPoints:   len(mined.Examples),
		Accuracy:     accuracy,
	}

	if !passed {
		p.logger.Info("model failed quality gate",
			"job_id", jobID, "model_version", trainedVersion,
			"accuracy", accuracy, "gate", p.cfg.QualityGate)
		p.notify(ctx, "Retrained model failed quality gate",
			fmt.Sprintf("Job %s trained %s with accuracy %.3f (gate %.2f). The model was not deployed.",
				jobID, trainedVersion, accuracy, p.cfg.QualityGate))
		p.complete(ctx, jobID, record)
		return nil
	}

	p.stage(ctx, jobID, "experiment")
	control := p.controlVersion(ctx)
	exp, err := p.experiments.CreateExperiment(ctx,
		fmt.Sprintf("canary %s", trainedVersion), control, trainedVersion, p.cfg.ABSplit)
	if err != nil {
		p.notify(ctx, "Retrained model passed gate but canary failed to start",
			fmt.Sprintf("Job %s trained %s (accuracy %.3f) but the experiment could not start: %v",
				jobID, trainedVersion, accuracy, err))
		return p.fail(ctx, jobID, fmt.Errorf("training: experiment stage: %w", err))
	}
	record.ExperimentID = exp.ID
	if err := p.performance.SetActiveABTest(ctx, trainedVersion, true); err != nil {
		p.logger.Warn("ab test flag update failed", "job_id", jobID, "error", err)
	}

	if len(mined.ConsumedFeedbackIDs) > 0 {
		if err := p.feedback.MarkReviewed(ctx, mined.ConsumedFeedbackIDs); err != nil {
			p.logger.Warn("feedback mark reviewed failed", "job_id", jobID, "error", err)
		}
	}

	p.notify(ctx, "New model in canary",
		fmt.Sprintf("Job %s trained %s on %d examples with accuracy %.3f. Experiment %s now routes %.0f%% of traffic to it. %d negative feedback items await curation; %d fallback utterances surfaced for intent discovery.",
			jobID, trainedVersion, len(mined.Examples), accuracy, exp.ID, p.cfg.ABSplit*100, len(mined.CurationQueue), len(mined.FallbackCandidates)))

	p.complete(ctx, jobID, record)
	p.logger.Info("retraining run completed",
		"job_id", jobID,
		"model_version", trainedVersion,
		"accuracy", accuracy,
		"experiment_id", exp.ID,
	)
	return nil
}

func (p *Pipeline) lastTrainedAt(ctx context.Context) time.Time {
	latest, err := p.performance.Latest(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoPerformanceRecords) {
			p.logger.Warn("latest performance lookup failed", "error", err)
		}
		return time.Time{}
	}
	return latest.TrainedAt
}

func (p *Pipeline) controlVersion(ctx context.Context) string {
	version, err := p.experiments.CurrentVersion(ctx)
	if err != nil || version == "" {
		return p.cfg.DefaultVersion
	}
	return version
}

func (p *Pipeline) recordStart(ctx context.Context, jobID string, params TriggerParams) {
	if p.jobs == nil {
		return
	}
	if err := p.jobs.PutRunning(ctx, &JobRecord{JobID: jobID, TriggerSource: params.Source}); err != nil {
		p.logger.Warn("job record insert failed", "job_id", jobID, "error", err)
	}
}

func (p *Pipeline) stage(ctx context.Context, jobID, stage string) {
	p.logger.Info("retraining stage", "job_id", jobID, "stage", stage)
	if p.jobs != nil {
		if err := p.jobs.SetStage(ctx, jobID, stage); err != nil {
			p.logger.Warn("job stage update failed", "job_id", jobID, "stage", stage, "error", err)
		}
	}
}

func (p *Pipeline) fail(ctx context.Context, jobID string, err error) error {
	if p.jobs != nil {
		// Record even when the run was canceled; the reason is the error.
		if markErr := p.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, err.Error()); markErr != nil {
			p.logger.Warn("job failure record failed", "job_id", jobID, "error", markErr)
		}
	}
	return err
}

func (p *Pipeline) complete(ctx context.Context, jobID string, rec *JobRecord) {
	if p.jobs == nil {
		return
	}
	if err := p.jobs.MarkCompleted(ctx, jobID, rec); err != nil {
		p.logger.Warn("job completion record failed", "job_id", jobID, "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, subject, body string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), subject, body); err != nil {
		p.logger.Warn("operator notification failed", "subject", subject, "error", err)
	}
}

func newModelVersion() string {
	return "v" + time.Now().UTC().Format("20060102-150405")
}
