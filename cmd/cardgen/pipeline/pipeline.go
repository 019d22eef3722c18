package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/skylens/weathercard/cmd/cardgen/cities"
	"github.com/skylens/weathercard/cmd/cardgen/imagegen"
	"github.com/skylens/weathercard/cmd/cardgen/models"
	"github.com/skylens/weathercard/cmd/cardgen/prompt"
	"github.com/skylens/weathercard/cmd/cardgen/weather"
	"github.com/skylens/weathercard/common/blobstore"
	"github.com/skylens/weathercard/common/config"
	"github.com/skylens/weathercard/common/logger"
)

// Step names. Stable identifiers: step records are keyed by them.
const (
	StepRecordStart   = "record-start"
	StepFetchWeather  = "fetch-weather"
	StepUpdateWeather = "update-weather"
	StepGenerateImage = "generate-image"
	StepUploadBlob    = "upload-blob"
	StepRecordSuccess = "record-success"
	StepRecordFailure = "record-failure"
)

// WeatherLookup resolves a city to a current weather summary
type WeatherLookup interface {
	Current(ctx context.Context, city string) (*weather.Info, error)
}

// ImageGenerator renders a card image for a prompt
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*imagegen.Result, error)
}

// Ledger is the run-scoped persistence surface the pipeline writes to.
// While a run is in status running, its pipeline execution is the only
// writer of that row.
type Ledger interface {
	Create(ctx context.Context, runID, city string, weatherDate time.Time) error
	UpdateWeather(ctx context.Context, runID string, w models.WeatherUpdate) error
	MarkSucceeded(ctx context.Context, runID, imageKey, model string, durationMs int64) error
	MarkFailed(ctx context.Context, runID, errorMessage string, durationMs int64) error
}

// Outcome is the terminal result of one pipeline execution
type Outcome struct {
	RunID        string
	Status       models.RunStatus
	City         string
	ImageKey     string
	Model        string
	ErrorMessage string
	Duration     time.Duration
}

// Pipeline orchestrates one card generation run as an ordered sequence
// of durable steps
type Pipeline struct {
	ledger Ledger
	wx     WeatherLookup
	images ImageGenerator
	blobs  blobstore.Store
	exec   *Executor
	cfg    config.PipelineConfig
	log    *logger.Logger

	rng *rand.Rand
	now func() time.Time
}

// New creates a pipeline
func New(ledger Ledger, wx WeatherLookup, images ImageGenerator, blobs blobstore.Store, exec *Executor, cfg config.PipelineConfig, log *logger.Logger) *Pipeline {
	return &Pipeline{
		ledger: ledger,
		wx:     wx,
		images: images,
		blobs:  blobs,
		exec:   exec,
		cfg:    cfg,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// runStart is the memoized result of record-start. City and date are
// fixed here so a replayed run keeps the same random draw and the same
// storage key across a date boundary.
type runStart struct {
	City string `json:"city"`
	Date string `json:"date"`
}

// ImageKey derives the storage key for a run's card. Deterministic in
// (date, city, runID) so a re-upload overwrites instead of duplicating,
// and keys stay discoverable by date and city.
func ImageKey(date, city, runID string) string {
	return fmt.Sprintf("cards/%s-%s-%s.png", date, cities.Slug(city), runID)
}

// Execute runs the full generation sequence for a run id. It always
// ends in exactly one terminal status written to the ledger, with one
// exception: if the identity record itself cannot be created there is
// nowhere to record anything, and the error is returned directly.
func (p *Pipeline) Execute(ctx context.Context, runID, cityOverride string) (*Outcome, error) {
	start := p.now()
	log := p.log.WithRunID(runID)

	// Step 1: record run start. Fatal on failure: without an identity
	// row no later step may execute.
	st, err := Do(ctx, p.exec, runID, StepRecordStart, Once, func(ctx context.Context) (runStart, error) {
		city := cityOverride
		if city == "" {
			city = cities.PickRandom(p.rng)
		}
		date := p.now()
		if err := p.ledger.Create(ctx, runID, city, date); err != nil {
			return runStart{}, err
		}
		return runStart{City: city, Date: date.Format("2006-01-02")}, nil
	})
	if err != nil {
		log.Error("run identity record could not be created", "error", err)
		return nil, fmt.Errorf("record run start: %w", err)
	}

	log.Info("generation run started", "city", st.City)

	imageKey, model, err := p.runSteps(ctx, runID, st, start)
	if err != nil {
		return p.recordFailure(ctx, runID, st, err, start), nil
	}

	duration := p.now().Sub(start)
	log.Info("generation run succeeded",
		"city", st.City,
		"image_key", imageKey,
		"duration_ms", duration.Milliseconds())

	return &Outcome{
		RunID:    runID,
		Status:   models.StatusSucceeded,
		City:     st.City,
		ImageKey: imageKey,
		Model:    model,
		Duration: duration,
	}, nil
}

// runSteps executes steps 2-6. Any returned error routes the run to the
// single failure handler.
func (p *Pipeline) runSteps(ctx context.Context, runID string, st runStart, start time.Time) (string, string, error) {
	log := p.log.WithRunID(runID)

	// Step 2: fetch weather. Best-effort: the card can render without
	// it, so a lookup failure is logged and swallowed inside the step.
	info, err := Do(ctx, p.exec, runID, StepFetchWeather, Once, func(ctx context.Context) (*weather.Info, error) {
		info, err := p.wx.Current(ctx, st.City)
		if err != nil {
			log.Warn("weather lookup failed, continuing without weather data",
				"city", st.City, "error", err)
			return nil, nil
		}
		return info, nil
	})
	if err != nil {
		// Only bookkeeping can fail here; weather stays enrichment
		log.Warn("fetch-weather step bookkeeping failed", "error", err)
		info = nil
	}

	// Step 3: persist weather fields. Skipped entirely when step 2
	// returned nothing; a write failure degrades the card, not the run.
	if info != nil {
		_, err := Do(ctx, p.exec, runID, StepUpdateWeather, Once, func(ctx context.Context) (bool, error) {
			update := models.WeatherUpdate{
				ResolvedCityName: info.ResolvedCityName,
				ConditionText:    info.ConditionText,
				ConditionIcon:    info.ConditionIcon,
				TempMin:          info.TempMin,
				TempMax:          info.TempMax,
				CurrentTemp:      info.CurrentTemp,
			}
			if err := p.ledger.UpdateWeather(ctx, runID, update); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			log.Warn("weather update failed, continuing", "error", err)
		}
	}

	// Step 4: generate the image, with a bounded retry budget. A
	// response without image bytes counts as a failure.
	retry := RetryPolicy{
		MaxAttempts: p.cfg.ImageRetryLimit + 1,
		Delay:       p.cfg.ImageRetryDelay,
	}
	img, err := Do(ctx, p.exec, runID, StepGenerateImage, retry, func(ctx context.Context) (*imagegen.Result, error) {
		return p.images.Generate(ctx, prompt.Build(st.City))
	})
	if err != nil {
		return "", "", err
	}

	// Step 5: upload to object storage under a deterministic key
	key, err := Do(ctx, p.exec, runID, StepUploadBlob, Once, func(ctx context.Context) (string, error) {
		key := ImageKey(st.Date, st.City, runID)
		if err := p.blobs.Put(ctx, key, img.Image, img.MimeType); err != nil {
			return "", err
		}
		return key, nil
	})
	if err != nil {
		return "", "", err
	}

	// Step 6: record the terminal succeeded state
	_, err = Do(ctx, p.exec, runID, StepRecordSuccess, Once, func(ctx context.Context) (bool, error) {
		durationMs := p.now().Sub(start).Milliseconds()
		if err := p.ledger.MarkSucceeded(ctx, runID, key, img.Model, durationMs); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return "", "", err
	}

	return key, img.Model, nil
}

// recordFailure is the single terminal handler for unrecovered step
// errors. If the failure write itself fails there is nowhere left to
// record it, so that one double failure is logged and swallowed.
func (p *Pipeline) recordFailure(ctx context.Context, runID string, st runStart, cause error, start time.Time) *Outcome {
	// The cause may be the run's own context dying (timeout, shutdown).
	// The terminal write still has to land, so detach from it.
	ctx = context.WithoutCancel(ctx)

	log := p.log.WithRunID(runID)
	duration := p.now().Sub(start)

	log.Error("generation run failed",
		"city", st.City,
		"duration_ms", duration.Milliseconds(),
		"error", cause)

	_, err := Do(ctx, p.exec, runID, StepRecordFailure, Once, func(ctx context.Context) (bool, error) {
		if err := p.ledger.MarkFailed(ctx, runID, cause.Error(), duration.Milliseconds()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		log.Error("failed to record run failure", "error", err)
	}

	return &Outcome{
		RunID:        runID,
		Status:       models.StatusFailed,
		City:         st.City,
		ErrorMessage: cause.Error(),
		Duration:     duration,
	}
}
