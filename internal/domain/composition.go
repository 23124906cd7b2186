package domain

import "time"

// LookMode selects between a single realistic try-on and a free-form
// multi-product stylistic generation.
type LookMode string

const (
	LookNatural  LookMode = "natural"
	LookCreative LookMode = "creative"
)

// ProductCategory distinguishes garments from everything else; the
// distinction drives provider selection.
type ProductCategory string

const (
	CategoryGarment   ProductCategory = "garment"
	CategoryAccessory ProductCategory = "accessory"
)

// ProductRef points at one catalog product included in a composition.
type ProductRef struct {
	ImageURL    string          `json:"image_url"`
	Category    ProductCategory `json:"category"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       string          `json:"price"`
}

// IsGarment reports whether the product participates in structured try-on.
func (p ProductRef) IsGarment() bool {
	return p.Category == CategoryGarment
}

// CompositionOptions carries per-request processing knobs.
type CompositionOptions struct {
	SkipWatermark bool   `json:"skip_watermark"`
	Quality       string `json:"quality"`
}

// CompositionRequest is the immutable input to a composition job: one person
// image, one or more products, a look mode and an optional explicit external
// product URL that overrides garment-based provider selection.
type CompositionRequest struct {
	StoreID        string             `json:"store_id"`
	PersonImageURL string             `json:"person_image_url"`
	Products       []ProductRef       `json:"products"`
	Look           LookMode           `json:"look"`
	ProductURL     string             `json:"product_url"`
	Options        CompositionOptions `json:"options"`
}

// PrimaryProduct returns the first product, the one that decides garment-ness.
func (r CompositionRequest) PrimaryProduct() ProductRef {
	if len(r.Products) == 0 {
		return ProductRef{}
	}
	return r.Products[0]
}

// JobState enumerates composition job lifecycle states.
type JobState string

const (
	JobStatePending          JobState = "pending"
	JobStateProviderDispatch JobState = "provider-dispatch"
	JobStateWatermark        JobState = "watermark"
	JobStateCompleted        JobState = "completed"
	JobStateFailed           JobState = "failed"
)

// Terminal reports whether a job may never transition again.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// StepStage names one pipeline stage of a job.
type StepStage string

const (
	StageProviderGeneration StepStage = "provider-generation"
	StageWatermark          StepStage = "watermark"
)

// StepStatus enumerates per-step progress.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepError      StepStatus = "error"
)

// StepRecord is one attempt at one stage. Steps are append-only and never
// retried in place; a failed provider step terminates the job.
type StepRecord struct {
	Stage     StepStage  `json:"stage"`
	Provider  string     `json:"provider,omitempty"`
	Status    StepStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// CompositionJob is the unit of work: the originating request plus lifecycle
// state, step records, accumulated cost and the final result or error. The
// orchestrator exclusively owns a job for its lifetime; once terminal it is
// never mutated again.
type CompositionJob struct {
	ID          string              `json:"id"`
	Request     CompositionRequest  `json:"request"`
	State       JobState            `json:"state"`
	Steps       []StepRecord        `json:"steps"`
	TotalCost   Money               `json:"total_cost"`
	ResultURLs  []string            `json:"result_urls,omitempty"`
	Err         error               `json:"-"`
	ErrorDetail string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

// ProcessingTime returns wall time from creation to the terminal transition,
// zero while the job is still running.
func (j *CompositionJob) ProcessingTime() time.Duration {
	if j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt)
}
