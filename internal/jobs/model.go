package jobs

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Kind selects the generation service a job runs against.
type Kind string

const (
	KindContent Kind = "content"
	KindSpeech  Kind = "speech"
	KindVideo   Kind = "video"
)

// ParseKind maps user input onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "content", "news":
		return KindContent, true
	case "speech", "voice", "audio":
		return KindSpeech, true
	case "video":
		return KindVideo, true
	}
	return "", false
}

// Status represents the lifecycle status of a job.
type Status string

const (
	// StatusIdle and StatusSubmitting exist only on the client, before a remote id is known.
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"

	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further polling happens in this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus maps a remote status string onto one of the four canonical
// remote statuses. Matching is case-insensitive.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued":
		return StatusPending, true
	case "processing", "running", "in_progress":
		return StatusProcessing, true
	case "completed", "complete", "succeeded":
		return StatusCompleted, true
	case "failed", "error":
		return StatusFailed, true
	}
	return "", false
}

// Result is the kind specific payload of a completed job.
type Result interface {
	Kind() Kind
}

// ContentResult carries generated text.
type ContentResult struct {
	Text string `json:"text"`
}

func (ContentResult) Kind() Kind { return KindContent }

// SpeechResult carries the synthesized audio location and metadata.
type SpeechResult struct {
	AudioURL        string  `json:"audioUrl"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
	VoiceName       string  `json:"voiceName,omitempty"`
}

func (SpeechResult) Kind() Kind { return KindSpeech }

// VideoResult carries the rendered video location and metadata.
type VideoResult struct {
	VideoURL        string  `json:"videoUrl"`
	ThumbnailURL    string  `json:"thumbnailUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	AvatarName      string  `json:"avatarName,omitempty"`
	VoiceName       string  `json:"voiceName,omitempty"`
}

func (VideoResult) Kind() Kind { return KindVideo }

// MediaURL returns the downloadable location of a result, if it has one.
func MediaURL(r Result) string {
	switch v := r.(type) {
	case SpeechResult:
		return v.AudioURL
	case VideoResult:
		return v.VideoURL
	}
	return ""
}

// Job describes one asynchronous unit of generation work tracked by the client.
type Job struct {
	LocalID      string     // client placeholder id, assigned before submission
	JobID        string     // remote id, empty until submission returns
	Kind         Kind       // generation service
	Status       Status     // current status; remote statuses always come from the service
	Attempts     int        // status checks performed so far
	Result       Result     // set only when Status == StatusCompleted
	ErrorMessage string     // set only when Status == StatusFailed
	CreatedAt    time.Time  // creation time
	UpdatedAt    time.Time  // last applied change
	CompletedAt  *time.Time // when a terminal status was reached
}

// Observation is what a single status check learned about a job.
type Observation struct {
	Status Status
	Result Result // when Status == StatusCompleted
	Error  string // when Status == StatusFailed, may be empty
}

// Request is the kind specific input of a job submission.
type Request interface {
	Kind() Kind
	// Validate checks mandatory fields without any network access.
	Validate() error
}

// Submission is returned by a Backend once the remote service accepted a job.
type Submission struct {
	JobID  string
	Status Status // optional initial status reported by the service
}

// Backend binds a job kind to its remote service.
type Backend interface {
	Submit(ctx context.Context, req Request) (Submission, error)
	Check(ctx context.Context, jobID string) (Observation, error)
}

var (
	// ErrNotFound marks a status check for a job the service does not know (yet).
	ErrNotFound = errors.New("job not found")
	// ErrUnexpectedPayload marks a status response whose shape could not be mapped.
	ErrUnexpectedPayload = errors.New("unexpected status payload")
	// ErrUnauthenticated marks a status check rejected because the session
	// ended. It fails the job at once.
	ErrUnauthenticated = errors.New("session is no longer valid")
	// ErrKindMismatch is returned when a request is given to a tracker of another kind.
	ErrKindMismatch = errors.New("request kind does not match tracker kind")
)

// ValidationError reports a missing or malformed mandatory field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid is a shorthand for building a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Store defines persistence for the local history of tracked jobs.
type Store interface {
	CreateJob(job *Job) error
	UpdateStatus(localID string, jobID string, status Status, attempts int) error
	SaveResult(localID string, result Result, completedAt time.Time) error
	SaveError(localID string, errMsg string, completedAt time.Time) error
	GetJob(localID string) (*Job, error)
	ListJobs(kind Kind, limit int) ([]Job, error)
	Close() error
}
