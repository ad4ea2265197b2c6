package submission

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

// State is a step of the upload-detect-persist pipeline.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateUploaded   State = "uploaded"
	StateDetecting  State = "detecting"
	StateDetected   State = "detected"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateError      State = "error"
)

var transitions = map[State][]State{
	StateIdle:       {StateUploading},
	StateUploading:  {StateUploaded},
	StateUploaded:   {StateDetecting, StateDetected},
	StateDetecting:  {StateDetected},
	StateDetected:   {StatePersisting},
	StatePersisting: {StateDone},
	// Reruns start over from a finished or failed attempt.
	StateDone:  {StateDetecting},
	StateError: {StateDetecting},
}

// CanTransition reports whether the pipeline allows from -> to. Error is
// reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if to == StateError {
		return from != StateError && from != StateDone && from != StateIdle
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}

// Submission tracks one file through the pipeline.
type Submission struct {
	ID       string
	upload   models.Upload
	localRef string

	mu        sync.Mutex
	state     State
	history   []Transition
	record    models.ImageRecord
	estimate  []models.Detection
	err       error
	detecting bool
}

func newSubmission(upload models.Upload) *Submission {
	return &Submission{
		ID:       uuid.NewString(),
		upload:   upload,
		localRef: upload.Name,
		state:    StateIdle,
	}
}

// State returns the current state.
func (s *Submission) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of every transition so far.
func (s *Submission) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transition(nil), s.history...)
}

// Record returns the latest record snapshot. It is provisional until the
// backend has assigned an ID.
func (s *Submission) Record() models.ImageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// Estimate returns the most recent detections before persistence, for display
// only. They are never broadcast.
func (s *Submission) Estimate() []models.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Detection(nil), s.estimate...)
}

// EstimateAvgConfidence is the client-side mean over Estimate.
func (s *Submission) EstimateAvgConfidence() float64 {
	return models.ProvisionalAvgConfidence(s.Estimate())
}

// LocalRef is the local fallback reference for the uploaded file. It stays on
// the submission and never reaches the record.
func (s *Submission) LocalRef() string {
	return s.localRef
}

// Err returns the error that moved the submission into StateError.
func (s *Submission) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Submission) wasUploaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.history {
		if t.To == StateUploaded {
			return true
		}
	}
	return false
}

func (s *Submission) beginDetect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detecting {
		return false
	}
	s.detecting = true
	return true
}

func (s *Submission) endDetect() {
	s.mu.Lock()
	s.detecting = false
	s.mu.Unlock()
}

func (s *Submission) setRecord(rec models.ImageRecord) {
	s.mu.Lock()
	s.record = rec.Clone()
	s.mu.Unlock()
}

func (s *Submission) setEstimate(dets []models.Detection) {
	s.mu.Lock()
	s.estimate = append([]models.Detection(nil), dets...)
	s.mu.Unlock()
}

func (s *Submission) move(to State, at time.Time, err error) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.state, to) {
		return Transition{}, false
	}
	t := Transition{From: s.state, To: to, At: at, Err: err}
	s.state = to
	s.history = append(s.history, t)
	if to == StateError {
		s.err = err
	} else {
		s.err = nil
	}
	return t, true
}
