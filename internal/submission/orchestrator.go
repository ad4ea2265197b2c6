// Package submission drives one file through upload, detection and
// persistence, and broadcasts each record snapshot the backend confirms.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johnrirwin/orbitsafe/internal/inference"
	"github.com/johnrirwin/orbitsafe/internal/logging"
	"github.com/johnrirwin/orbitsafe/internal/models"
)

var (
	// ErrNoRecordID is returned when the upload response carried no id, so
	// detections have nowhere to be persisted.
	ErrNoRecordID = errors.New("upload response has no record id")
	// ErrDetectionInFlight is returned when a submission is already detecting.
	ErrDetectionInFlight = errors.New("detection already in progress")
	// ErrNotUploaded is returned when detection is requested before upload.
	ErrNotUploaded = errors.New("submission has not been uploaded")
	// ErrInvalidTransition guards the state machine.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Backend is the subset of the transport client the pipeline needs.
type Backend interface {
	Upload(ctx context.Context, upload models.Upload) (*models.ImageRecord, error)
	GetImage(ctx context.Context, id string) (*models.ImageRecord, error)
	PersistDetections(ctx context.Context, id string, dets []models.Detection) (*models.ImageRecord, error)
}

// Publisher broadcasts record snapshots to the views.
type Publisher interface {
	PublishCreated(rec models.ImageRecord)
	PublishUpdated(rec models.ImageRecord)
}

// PolicySource supplies the detection policy in force for a run.
type PolicySource interface {
	Policy(ctx context.Context) inference.Policy
}

// TransitionHook observes every state change.
type TransitionHook func(s *Submission, t Transition)

// Config wires an Orchestrator.
type Config struct {
	Backend      Backend
	Detector     inference.Detector
	Publisher    Publisher
	Policy       PolicySource
	Locks        *KeyedLocks
	OnTransition TransitionHook
	Logger       *logging.Logger
	Now          func() time.Time
}

// Orchestrator runs submissions. It is safe for concurrent use.
type Orchestrator struct {
	backend   Backend
	detector  inference.Detector
	publisher Publisher
	policy    PolicySource
	locks     *KeyedLocks
	hook      TransitionHook
	logger    *logging.Logger
	now       func() time.Time
}

// New creates an orchestrator. Locks may be shared between orchestrators so
// persistence stays serialized per record id across all of them.
func New(cfg Config) *Orchestrator {
	locks := cfg.Locks
	if locks == nil {
		locks = NewKeyedLocks()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	return &Orchestrator{
		backend:   cfg.Backend,
		detector:  cfg.Detector,
		publisher: cfg.Publisher,
		policy:    cfg.Policy,
		locks:     locks,
		hook:      cfg.OnTransition,
		logger:    logger,
		now:       now,
	}
}

// Submit uploads a file, broadcasts the created record, then detects and
// persists. The submission is returned even on failure so callers can inspect
// its final state.
func (o *Orchestrator) Submit(ctx context.Context, upload models.Upload) (*Submission, error) {
	s := newSubmission(upload)
	if err := o.upload(ctx, s, upload); err != nil {
		return s, err
	}
	return s, o.detect(ctx, s)
}

// SubmitWithDetections uploads a captured frame together with detections the
// caller already has in pixel coordinates. Inference is not called.
func (o *Orchestrator) SubmitWithDetections(ctx context.Context, upload models.Upload, dets []models.Detection) (*Submission, error) {
	at := o.now()
	stamped := make([]models.Detection, len(dets))
	for i, d := range dets {
		if d.DetectedAt.IsZero() {
			d.DetectedAt = at
		}
		if d.Source == "" {
			d.Source = models.DefaultDetectorName
		}
		stamped[i] = d
	}
	upload.Detections = stamped

	s := newSubmission(upload)
	if err := o.upload(ctx, s, upload); err != nil {
		return s, err
	}

	s.setEstimate(stamped)
	if err := o.move(s, StateDetected, nil); err != nil {
		return s, err
	}
	return s, o.persist(ctx, s, stamped)
}

// Redetect reruns detection and persistence for an uploaded submission. The
// new detections replace the previous ones wholesale.
func (o *Orchestrator) Redetect(ctx context.Context, s *Submission) error {
	if !s.wasUploaded() {
		return ErrNotUploaded
	}
	return o.detect(ctx, s)
}

func (o *Orchestrator) upload(ctx context.Context, s *Submission, upload models.Upload) error {
	if err := o.move(s, StateUploading, nil); err != nil {
		return err
	}

	rec, err := o.backend.Upload(ctx, upload)
	if err != nil {
		o.fail(s, fmt.Errorf("upload %s: %w", upload.Name, err))
		return s.Err()
	}

	record := *rec
	if !record.IsProvisional() {
		if fresh, err := o.backend.GetImage(ctx, record.ID); err != nil {
			o.logger.Warn("Refetch after upload failed, using upload response", logging.WithFields(map[string]interface{}{
				"submission": s.ID,
				"record":     record.ID,
				"error":      err.Error(),
			}))
		} else if fresh != nil {
			if fresh.ID == "" {
				fresh.ID = record.ID
			}
			record = *fresh
		}
	}
	if record.OriginalName == "" {
		record.OriginalName = upload.Name
	}
	if record.Detections == nil {
		record.Detections = []models.Detection{}
	}

	s.setRecord(record)
	if err := o.move(s, StateUploaded, nil); err != nil {
		return err
	}
	if o.publisher != nil {
		o.publisher.PublishCreated(record)
	}

	o.logger.Info("Image uploaded", logging.WithFields(map[string]interface{}{
		"submission": s.ID,
		"record":     record.ID,
		"name":       upload.Name,
	}))
	return nil
}

func (o *Orchestrator) detect(ctx context.Context, s *Submission) error {
	if !s.beginDetect() {
		return ErrDetectionInFlight
	}
	defer s.endDetect()

	if err := o.move(s, StateDetecting, nil); err != nil {
		return err
	}

	raw, err := o.detector.Detect(ctx, s.upload)
	if err != nil {
		o.fail(s, fmt.Errorf("detect %s: %w", s.upload.Name, err))
		return s.Err()
	}

	dets, problems := models.NormalizeDetections(raw)
	for _, p := range problems {
		o.logger.Debug("Dropped malformed detection", logging.WithFields(map[string]interface{}{
			"submission": s.ID,
			"error":      p.Error(),
		}))
	}
	if o.policy != nil {
		dets = o.policy.Policy(ctx).Apply(dets)
	}
	dets = models.Enrich(dets, o.now(), o.detector.Name())

	s.setEstimate(dets)
	if err := o.move(s, StateDetected, nil); err != nil {
		return err
	}
	return o.persist(ctx, s, dets)
}

func (o *Orchestrator) persist(ctx context.Context, s *Submission, dets []models.Detection) error {
	id := s.Record().ID
	if id == "" {
		o.fail(s, ErrNoRecordID)
		return ErrNoRecordID
	}

	if err := o.move(s, StatePersisting, nil); err != nil {
		return err
	}

	// Held until the update is published so broadcasts follow persist order.
	unlock := o.locks.Lock(id)
	defer unlock()

	rec, err := o.backend.PersistDetections(ctx, id, dets)
	if err != nil {
		o.fail(s, fmt.Errorf("persist detections for %s: %w", id, err))
		return s.Err()
	}

	record := *rec
	if record.ID == "" {
		record.ID = id
	}
	s.setRecord(record)
	if err := o.move(s, StateDone, nil); err != nil {
		return err
	}
	if o.publisher != nil {
		o.publisher.PublishUpdated(record)
	}

	o.logger.Info("Detections persisted", logging.WithFields(map[string]interface{}{
		"submission": s.ID,
		"record":     id,
		"detections": len(record.Detections),
	}))
	return nil
}

func (o *Orchestrator) move(s *Submission, to State, cause error) error {
	from := s.State()
	t, ok := s.move(to, o.now(), cause)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if o.hook != nil {
		o.hook(s, t)
	}
	return nil
}

func (o *Orchestrator) fail(s *Submission, err error) {
	o.logger.Warn("Submission failed", logging.WithFields(map[string]interface{}{
		"submission": s.ID,
		"state":      string(s.State()),
		"error":      err.Error(),
	}))
	if moveErr := o.move(s, StateError, err); moveErr != nil {
		o.logger.Error("Unable to record submission failure", logging.WithField("error", moveErr.Error()))
	}
}
