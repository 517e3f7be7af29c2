// Package importer runs import batches: it builds events from raw records, validates them,
// matches them against known places and events, and decides each record's outcome.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/bynight/pkg/context"
	"github.com/Ramsey-B/bynight/pkg/echantillon"
	"github.com/Ramsey-B/bynight/pkg/fingerprint"
	"github.com/Ramsey-B/bynight/pkg/matching"
	"github.com/Ramsey-B/bynight/pkg/metrics"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/reject"
	"github.com/Ramsey-B/bynight/pkg/tracing"
	"github.com/Ramsey-B/bynight/pkg/validation"
)

// Locker serializes batches of the same source.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl, wait time.Duration, fn func() error) error
}

// Publisher receives the outcomes of every batch.
type Publisher interface {
	Publish(ctx context.Context, outcomes []models.Outcome) error
}

type Config struct {
	LockTTL        time.Duration
	LockWait       time.Duration
	Location       *time.Location
	DefaultCountry string
	// EventURLBase, when set, links BAD_USER violations to the existing event.
	EventURLBase string
}

// BatchResult summarizes one batch.
type BatchResult struct {
	BatchID  string                       `json:"batch_id"`
	Source   string                       `json:"source"`
	Total    int                          `json:"total"`
	Counts   map[models.OutcomeStatus]int `json:"counts"`
	Outcomes []models.Outcome             `json:"outcomes"`
	Duration time.Duration                `json:"duration"`
}

func (r *BatchResult) Count(status models.OutcomeStatus) int {
	return r.Counts[status]
}

type Importer struct {
	logger    ectologger.Logger
	places    echantillon.PlaceFinder
	events    echantillon.EventFinder
	resolver  LocationResolver
	validator *validation.Validator
	matcher   *matching.PlaceMatcher
	locker    Locker
	publisher Publisher
	monitor   Monitor
	config    Config
}

// NewImporter creates an Importer. locker and publisher may be nil.
func NewImporter(
	logger ectologger.Logger,
	places echantillon.PlaceFinder,
	events echantillon.EventFinder,
	resolver LocationResolver,
	validator *validation.Validator,
	matcher *matching.PlaceMatcher,
	locker Locker,
	publisher Publisher,
	monitor Monitor,
	config Config,
) *Importer {
	if config.LockTTL <= 0 {
		config.LockTTL = 5 * time.Minute
	}
	if config.LockWait <= 0 {
		config.LockWait = 30 * time.Second
	}
	if monitor == nil {
		monitor = NewStepMonitor(logger)
	}
	return &Importer{
		logger:    logger,
		places:    places,
		events:    events,
		resolver:  resolver,
		validator: validator,
		matcher:   matcher,
		locker:    locker,
		publisher: publisher,
		monitor:   monitor,
		config:    config,
	}
}

// HandleBatch imports the records of one source. Per-record problems become outcomes;
// an error means the batch as a whole failed and nothing was published.
func (i *Importer) HandleBatch(ctx context.Context, source string, records []models.RawRecord) (*BatchResult, error) {
	batchID := uuid.New().String()
	ctx = appctx.SetSource(ctx, source)
	ctx = appctx.SetBatchID(ctx, batchID)

	ctx, span := tracing.StartSpan(ctx, "importer.Importer.HandleBatch")
	defer span.End()

	log := i.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx)).WithField("records", len(records))
	start := time.Now()

	var result *BatchResult
	run := func() error {
		var err error
		result, err = i.handle(ctx, batchID, source, records)
		return err
	}

	var err error
	if i.locker != nil {
		err = i.locker.WithLock(ctx, "import:"+source, i.config.LockTTL, i.config.LockWait, run)
	} else {
		err = run()
	}

	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordBatch(source, "failed", elapsed.Seconds())
		log.WithError(err).Error("Import batch failed")
		return nil, err
	}
	result.Duration = elapsed
	metrics.RecordBatch(source, "succeeded", elapsed.Seconds())

	log.WithFields(map[string]any{
		"created":   result.Count(models.OutcomeCreated),
		"updated":   result.Count(models.OutcomeUpdated),
		"duplicate": result.Count(models.OutcomeDuplicate),
		"unchanged": result.Count(models.OutcomeUnchanged),
		"rejected":  result.Count(models.OutcomeRejected),
		"invalid":   result.Count(models.OutcomeInvalid),
		"duration":  elapsed.String(),
	}).Info("Import batch done")

	return result, nil
}

func (i *Importer) handle(ctx context.Context, batchID, source string, records []models.RawRecord) (*BatchResult, error) {
	log := i.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx))

	factory := NewFactory(i.logger, i.resolver, i.validator, i.config.Location, i.config.DefaultCountry)
	outcomes := make([]models.Outcome, len(records))
	events := make([]*models.Event, len(records))
	candidates := make([]*models.Event, 0, len(records))

	stop := i.monitor.Bench("build")
	for idx, record := range records {
		if record.Source == "" {
			record.Source = source
		}
		event, err := factory.Build(ctx, record)
		if err != nil {
			stop()
			return nil, fmt.Errorf("failed to build record %d: %w", idx, err)
		}
		i.validator.Validate(event)

		if err := echantillon.EnsureEligible(event); err != nil {
			log.WithError(err).WithField("index", idx).Warn("Record cannot be matched")
			outcomes[idx] = newOutcome(event, models.OutcomeInvalid)
			outcomes[idx].Message = err.Error()
			continue
		}
		events[idx] = event
		candidates = append(candidates, event)
	}
	stop()

	handler := echantillon.NewHandler(i.logger, i.places, i.events)

	stop = i.monitor.Bench("prefetch_places")
	err := handler.PrefetchPlaceEchantillons(ctx, candidates)
	stop()
	if err != nil {
		return nil, err
	}

	stop = i.monitor.Bench("prefetch_events")
	err = handler.PrefetchEventEchantillons(ctx, candidates)
	stop()
	if err != nil {
		return nil, err
	}

	stop = i.monitor.Bench("decide")
	for idx, event := range events {
		if event == nil {
			continue
		}
		outcomes[idx] = i.decide(handler, event)
	}
	stop()

	result := &BatchResult{
		BatchID:  batchID,
		Source:   source,
		Total:    len(records),
		Counts:   map[models.OutcomeStatus]int{},
		Outcomes: outcomes,
	}
	for _, outcome := range outcomes {
		result.Counts[outcome.Status]++
		metrics.RecordOutcome(source, string(outcome.Status), reasonNames(outcome.RejectReason))
	}

	if i.publisher != nil && len(outcomes) > 0 {
		stop = i.monitor.Bench("publish")
		err := i.publisher.Publish(ctx, outcomes)
		stop()
		if err != nil {
			return nil, fmt.Errorf("failed to publish outcomes: %w", err)
		}
	}

	log.WithFields(map[string]any{
		"places": handler.PlaceCount(),
		"events": handler.EventCount(),
	}).Debug("Candidate indexes at end of batch")

	return result, nil
}

// decide matches one eligible event against the batch candidates and registers it when it is new.
func (i *Importer) decide(handler *echantillon.Handler, event *models.Event) models.Outcome {
	places := handler.GetPlaceEchantillons(event)
	metrics.PlaceCandidates.WithLabelValues(event.Source).Observe(float64(len(places)))

	if event.Place != nil {
		if match := i.matcher.Best(event.Place, places); match != nil {
			event.Place = match.Place
		}
	}

	var existing *models.Event
	if known := handler.GetEventEchantillons(event); len(known) > 0 {
		existing = known[0]
	}

	status := models.OutcomeCreated
	switch {
	case existing == nil:
	case existing.IsUserAuthored():
		event.Reject.AddReason(reject.BadUser)
	case existing.IsPersisted():
		event.ID = existing.ID
		status = models.OutcomeUpdated
		if !fingerprint.HasChanged(existing.Fingerprint, event.Fingerprint) {
			event.Reject.AddReason(reject.NoNeedToUpdate)
			status = models.OutcomeUnchanged
		}
	default:
		status = models.OutcomeDuplicate
	}

	if event.Reject.Reason()&^reject.NoNeedToUpdate != reject.Valid {
		outcome := newOutcome(event, models.OutcomeRejected)
		outcome.PlaceCandidates = len(places)
		outcome.Violations = validation.Violations(event, i.violationOptions(existing))
		return outcome
	}

	if status == models.OutcomeCreated || status == models.OutcomeUpdated {
		handler.AddNewEvent(event)
	}

	outcome := newOutcome(event, status)
	outcome.PlaceCandidates = len(places)
	if existing != nil && status == models.OutcomeDuplicate {
		outcome.Message = fmt.Sprintf("duplicate of external id %s in the same batch", existing.ExternalID)
	}
	return outcome
}

func (i *Importer) violationOptions(existing *models.Event) validation.ViolationOptions {
	opts := validation.ViolationOptions{}
	if i.config.EventURLBase != "" && existing != nil {
		url := validation.EventURLTemplate(i.config.EventURLBase)
		opts.EventURL = func(*models.Event) string { return url(existing) }
	}
	return opts
}

func newOutcome(event *models.Event, status models.OutcomeStatus) models.Outcome {
	outcome := models.Outcome{
		Status:        status,
		Source:        event.Source,
		ExternalID:    event.ExternalID,
		EventID:       event.ID,
		LocationSlug:  event.LocationSlug(),
		Fingerprint:   event.Fingerprint,
		FromData:      event.FromData,
		ParserVersion: event.ParserVersion,
	}
	if event.Reject != nil {
		outcome.RejectReason = event.Reject.Reason()
	}
	if event.PlaceReject != nil {
		outcome.PlaceRejectReason = event.PlaceReject.Reason()
	}
	if event.Place != nil {
		outcome.PlaceID = event.Place.ID
		outcome.PlaceExternalID = event.Place.ExternalID
	}
	return outcome
}

func reasonNames(reason reject.Reason) []string {
	if reason == reject.Valid {
		return nil
	}
	names := []string{}
	for _, flag := range reject.All {
		if reason&flag != 0 {
			names = append(names, flag.String())
		}
	}
	return names
}
