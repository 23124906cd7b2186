package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fitstudio/internal/dispatch"
	"fitstudio/internal/domain"
	"fitstudio/internal/infra"
	"fitstudio/internal/providers/image"
	"fitstudio/internal/providers/prompt"
	"fitstudio/internal/telemetry"
	"fitstudio/internal/watermark"
)

// JobStore persists job snapshots. Persistence is best effort; a write
// failure is logged and never changes the job outcome.
type JobStore interface {
	Save(ctx context.Context, job *domain.CompositionJob) error
}

// Publisher receives job state transitions (e.g. the websocket hub).
type Publisher interface {
	Publish(job *domain.CompositionJob)
}

// Uploader persists inline image payloads returned by providers.
type Uploader interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Options wires an Orchestrator.
type Options struct {
	Providers map[ProviderKind]image.Generator
	// Queue gates the quota-constrained compositing provider. Optional; when
	// nil the provider is invoked directly.
	Queue       *dispatch.Queue[*image.Result]
	Watermarker watermark.Applier
	Enhancer    prompt.Enhancer
	Store       Uploader
	StoreBase   string
	Repo        JobStore
	Publisher   Publisher
	Watermark   watermark.Options
	Logger      infra.Logger
}

// Orchestrator owns each composition job for its whole lifetime and drives
// the state machine: validate, select a provider, invoke it (through the
// dispatch queue when quota constrained), accumulate cost, watermark,
// finalize or fail.
type Orchestrator struct {
	providers   map[ProviderKind]image.Generator
	queue       *dispatch.Queue[*image.Result]
	watermarker watermark.Applier
	enhancer    prompt.Enhancer
	store       Uploader
	storeBase   string
	repo        JobStore
	publisher   Publisher
	wmDefaults  watermark.Options
	logger      infra.Logger
}

// NewOrchestrator builds an orchestrator from Options.
func NewOrchestrator(opts Options) *Orchestrator {
	watermarker := opts.Watermarker
	if watermarker == nil {
		watermarker = watermark.Noop{}
	}
	if opts.Queue != nil {
		opts.Queue.OnDepth(func(depth int) {
			telemetry.DispatchQueueDepth.Set(float64(depth))
		})
	}
	return &Orchestrator{
		providers:   opts.Providers,
		queue:       opts.Queue,
		watermarker: watermarker,
		enhancer:    opts.Enhancer,
		store:       opts.Store,
		storeBase:   strings.TrimRight(opts.StoreBase, "/"),
		repo:        opts.Repo,
		publisher:   opts.Publisher,
		wmDefaults:  opts.Watermark,
		logger:      opts.Logger,
	}
}

// Run executes one composition job to a terminal state. The returned job is
// always non-nil; err mirrors job.Err for failed jobs.
func (o *Orchestrator) Run(ctx context.Context, req domain.CompositionRequest) (*domain.CompositionJob, error) {
	job := &domain.CompositionJob{
		ID:        uuid.NewString(),
		Request:   req,
		State:     domain.JobStatePending,
		CreatedAt: time.Now().UTC(),
	}
	o.publish(job)

	if err := validateRequest(req); err != nil {
		return job, o.fail(ctx, job, err)
	}

	kind := SelectForRequest(req)
	job.State = domain.JobStateProviderDispatch
	step := domain.StepRecord{
		Stage:     domain.StageProviderGeneration,
		Provider:  string(kind),
		Status:    domain.StepProcessing,
		StartedAt: time.Now().UTC(),
	}
	job.Steps = append(job.Steps, step)
	o.publish(job)

	in, err := o.buildInput(ctx, job, kind)
	if err != nil {
		o.closeStep(job, domain.StepError, err)
		return job, o.fail(ctx, job, err)
	}

	res, err := o.invoke(ctx, kind, in)
	if err != nil {
		telemetry.ProviderInvocations.WithLabelValues(string(kind), "error").Inc()
		o.closeStep(job, domain.StepError, err)
		return job, o.fail(ctx, job, err)
	}
	telemetry.ProviderInvocations.WithLabelValues(string(kind), "success").Inc()

	total, addErr := job.TotalCost.Add(res.Cost)
	if addErr != nil {
		o.logger.Error().Err(addErr).Str("job_id", job.ID).Msg("composer: cost accumulation skipped")
	} else {
		job.TotalCost = total
	}

	resultURL, err := o.materialize(ctx, job, res)
	if err != nil {
		o.closeStep(job, domain.StepError, err)
		return job, o.fail(ctx, job, err)
	}
	job.ResultURLs = []string{resultURL}
	o.closeStep(job, domain.StepCompleted, nil)

	if !req.Options.SkipWatermark {
		o.applyWatermark(ctx, job)
	}

	job.State = domain.JobStateCompleted
	job.CompletedAt = time.Now().UTC()
	telemetry.CompositionsCompleted.Inc()
	telemetry.CompositionSeconds.Observe(job.ProcessingTime().Seconds())
	o.persist(ctx, job)
	o.publish(job)
	o.logger.Info().
		Str("job_id", job.ID).
		Str("provider", string(kind)).
		Str("cost", job.TotalCost.String()).
		Dur("took", job.ProcessingTime()).
		Msg("composer: job completed")
	return job, nil
}

func validateRequest(req domain.CompositionRequest) error {
	if strings.TrimSpace(req.PersonImageURL) == "" {
		return &domain.ValidationError{Field: "person_image_url", Reason: "required"}
	}
	if len(req.Products) == 0 {
		return &domain.ValidationError{Field: "products", Reason: "at least one product is required"}
	}
	for i, product := range req.Products {
		if strings.TrimSpace(product.ImageURL) == "" && strings.TrimSpace(product.Description) == "" {
			return &domain.ValidationError{
				Field:  fmt.Sprintf("products[%d]", i),
				Reason: "an image reference or a text description is required",
			}
		}
	}
	switch req.Look {
	case domain.LookNatural, domain.LookCreative:
	default:
		return &domain.ValidationError{Field: "look", Reason: "must be natural or creative"}
	}
	return nil
}

func (o *Orchestrator) buildInput(ctx context.Context, job *domain.CompositionJob, kind ProviderKind) (image.Input, error) {
	req := job.Request
	in := image.Input{
		JobID:          job.ID,
		StoreID:        req.StoreID,
		PersonImageURL: req.PersonImageURL,
		Quality:        req.Options.Quality,
	}
	for _, product := range req.Products {
		in.Products = append(in.Products, image.Product{
			ImageURL:    product.ImageURL,
			Name:        product.Name,
			Description: product.Description,
			Price:       product.Price,
			Garment:     product.IsGarment(),
		})
	}
	switch kind {
	case ProviderComposite:
		in.Instruction = BuildCreativeInstruction(req)
	case ProviderEdit:
		instruction, err := BuildEditInstruction(ctx, o.enhancer, req)
		if err != nil {
			return image.Input{}, fmt.Errorf("build instruction: %w", err)
		}
		in.Instruction = instruction
	}
	return in, nil
}

// invoke routes the call through the dispatch queue for the quota-gated
// compositing capability and calls every other adapter directly.
func (o *Orchestrator) invoke(ctx context.Context, kind ProviderKind, in image.Input) (*image.Result, error) {
	provider, ok := o.providers[kind]
	if !ok {
		return nil, &domain.ConfigurationError{Provider: string(kind), Err: fmt.Errorf("provider not wired")}
	}
	if kind == ProviderComposite && o.queue != nil {
		outcome := <-o.queue.Enqueue(ctx, func(ctx context.Context) (*image.Result, error) {
			return provider.Generate(ctx, in)
		})
		return outcome.Value, outcome.Err
	}
	return provider.Generate(ctx, in)
}

// materialize turns a provider result into a stable URL. Inline payloads are
// persisted to the configured store.
func (o *Orchestrator) materialize(ctx context.Context, job *domain.CompositionJob, res *image.Result) (string, error) {
	if res.ImageURL != "" {
		return res.ImageURL, nil
	}
	if len(res.Data) == 0 {
		return "", &domain.TransformError{Stage: "materialize", Err: fmt.Errorf("provider returned neither url nor data")}
	}
	if o.store == nil {
		return "", &domain.TransformError{Stage: "materialize", Err: fmt.Errorf("inline payload but no store configured")}
	}
	key := fmt.Sprintf("compositions/%s/result%s", job.ID, extensionForMIME(res.Format))
	savedKey, err := o.store.Write(ctx, key, res.Data)
	if err != nil {
		return "", &domain.TransformError{Stage: "materialize", Err: err}
	}
	if o.storeBase == "" {
		return savedKey, nil
	}
	return o.storeBase + "/" + savedKey, nil
}

// applyWatermark runs the post-processing step. A per-image failure keeps
// that image's pre-watermark URL; the step, and the job, still complete.
func (o *Orchestrator) applyWatermark(ctx context.Context, job *domain.CompositionJob) {
	job.State = domain.JobStateWatermark
	step := domain.StepRecord{
		Stage:     domain.StageWatermark,
		Status:    domain.StepProcessing,
		StartedAt: time.Now().UTC(),
	}
	job.Steps = append(job.Steps, step)
	o.publish(job)

	opts := o.wmDefaults
	primary := job.Request.PrimaryProduct()
	opts.StoreName = job.Request.StoreID
	opts.ProductName = primary.Name
	opts.ProductPrice = primary.Price

	results := o.watermarker.Apply(ctx, job.ResultURLs, opts)
	var degraded int
	for i, result := range results {
		if i >= len(job.ResultURLs) {
			break
		}
		if result.Err != nil {
			degraded++
			telemetry.WatermarkDegraded.Inc()
			o.logger.Warn().Err(result.Err).
				Str("job_id", job.ID).
				Str("image_url", job.ResultURLs[i]).
				Msg("composer: watermark degraded, keeping original")
			continue
		}
		job.ResultURLs[i] = result.URL
	}

	idx := len(job.Steps) - 1
	job.Steps[idx].Status = domain.StepCompleted
	job.Steps[idx].EndedAt = time.Now().UTC()
	if degraded > 0 {
		job.Steps[idx].Error = fmt.Sprintf("%d of %d images kept pre-watermark url", degraded, len(results))
	}
}

// closeStep finalizes the most recent step record.
func (o *Orchestrator) closeStep(job *domain.CompositionJob, status domain.StepStatus, err error) {
	idx := len(job.Steps) - 1
	if idx < 0 {
		return
	}
	job.Steps[idx].Status = status
	job.Steps[idx].EndedAt = time.Now().UTC()
	if err != nil {
		job.Steps[idx].Error = err.Error()
	}
}

// fail moves the job to its terminal failed state. Cost events already
// recorded for prior successful steps stay counted; nothing is reverted.
func (o *Orchestrator) fail(ctx context.Context, job *domain.CompositionJob, err error) error {
	job.State = domain.JobStateFailed
	job.Err = err
	job.ErrorDetail = err.Error()
	job.CompletedAt = time.Now().UTC()
	telemetry.CompositionsFailed.Inc()
	o.persist(ctx, job)
	o.publish(job)
	o.logger.Error().Err(err).Str("job_id", job.ID).Msg("composer: job failed")
	return err
}

func (o *Orchestrator) persist(ctx context.Context, job *domain.CompositionJob) {
	if o.repo == nil {
		return
	}
	if err := o.repo.Save(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("composer: persist job failed")
	}
}

func (o *Orchestrator) publish(job *domain.CompositionJob) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(job)
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
