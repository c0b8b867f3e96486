// Package session holds the state of one tailoring workflow: inputs, the
// tailored résumé, the cover letter and the lifecycle state machine.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cvtailor/internal/ai"
	"cvtailor/internal/errors"
	"cvtailor/internal/export"
	"cvtailor/internal/types"
)

// AI is the subset of ai.Service used by a session.
type AI interface {
	Tailor(ctx context.Context, input types.TailorInput) (*types.ResumeDocument, *ai.TokenUsage, error)
	Refine(ctx context.Context, input types.RefineInput) (*types.ResumeDocument, *ai.TokenUsage, error)
	GenerateCoverLetter(ctx context.Context, input types.CoverLetterInput) (*types.CoverLetter, *ai.TokenUsage, error)
}

// Exporter renders documents into files.
type Exporter interface {
	BuildResume(doc *types.ResumeDocument, opts types.ExportOptions) (*export.File, error)
	BuildCoverLetter(letter *types.CoverLetter, fullName string) (*export.File, error)
}

// Sentinel errors for rejected transitions.
var (
	ErrBusy         = errors.NewStateError(errors.ErrCodeSessionBusy, "another operation is already in progress", nil)
	ErrInvalidState = errors.NewStateError(errors.ErrCodeInvalidState, "operation is not allowed in the current state", nil)
)

// User-facing messages stored in the snapshot.
const (
	MessageMissingInputs = "Please provide both your CV and the job description."
	MessageTailorFailed  = "Failed to tailor the CV. Please try again."
)

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Exporter     Exporter
	Logger       *errors.Logger
	OnTransition func(from, to types.LifecycleState)
	Now          func() time.Time
}

// Controller is the state container of one tailoring session. It is safe for concurrent use.
// The lock is never held across AI calls.
type Controller struct {
	mu sync.Mutex

	ai           AI
	exporter     Exporter
	logger       *errors.Logger
	onTransition func(from, to types.LifecycleState)
	now          func() time.Time

	state          types.LifecycleState
	resumeText     string
	jobDescription string
	additionalText string
	textColor      string
	feedback       string
	resume         *types.ResumeDocument
	coverLetter    *types.CoverLetter
	errorMessage   string
	errorCode      string
	refining       bool
	generating     bool

	// epoch increments on Reset so results of calls started earlier are discarded.
	epoch      uint64
	lastActive time.Time
}

// NewController creates an idle session
func NewController(svc AI, opts Options) *Controller {
	c := &Controller{
		ai:           svc,
		exporter:     opts.Exporter,
		logger:       opts.Logger,
		onTransition: opts.OnTransition,
		now:          opts.Now,
		textColor:    types.DefaultTextColor,
	}
	if c.exporter == nil {
		c.exporter = export.Exporter{}
	}
	if c.logger == nil {
		c.logger = errors.NewNopLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.lastActive = c.now()
	return c
}

// transition must be called with c.mu held.
func (c *Controller) transition(to types.LifecycleState) {
	from := c.state
	c.state = to
	c.logger.Debug("Session state transition", "from", from.String(), "to", to.String())
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}

// touch must be called with c.mu held.
func (c *Controller) touch() {
	c.lastActive = c.now()
}

// editable rejects input changes while tailoring runs or once a result exists.
// It must be called with c.mu held.
func (c *Controller) editable() error {
	switch c.state {
	case types.StateLoading:
		return ErrBusy
	case types.StateSuccess:
		return fmt.Errorf("inputs are locked until reset: %w", ErrInvalidState)
	}
	return nil
}

// SetInputs stores the free-text résumé and the job description. Allowed in Idle and Error.
func (c *Controller) SetInputs(resumeText, jobDescription string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.editable(); err != nil {
		return err
	}
	c.resumeText = resumeText
	c.jobDescription = jobDescription
	return nil
}

// SetAdditionalText stores the free text appended to the exported résumé. Allowed in Idle and Error.
func (c *Controller) SetAdditionalText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.editable(); err != nil {
		return err
	}
	c.additionalText = text
	return nil
}

// SetTextColor stores the colour of the additional text. Empty restores the default.
// Allowed in Idle and Error.
func (c *Controller) SetTextColor(color string) error {
	color = strings.TrimSpace(color)
	if color == "" {
		color = types.DefaultTextColor
	}
	if _, err := export.NormalizeColor(color); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if err := c.editable(); err != nil {
		return err
	}
	c.textColor = color
	return nil
}

// SetFeedback stores the refinement instructions.
func (c *Controller) SetFeedback(feedback string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.feedback = feedback
}

// Submit runs the initial tailoring. It is allowed from Idle and Error.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	c.touch()
	switch c.state {
	case types.StateLoading:
		c.mu.Unlock()
		return ErrBusy
	case types.StateSuccess:
		c.mu.Unlock()
		return fmt.Errorf("submit after success requires a reset: %w", ErrInvalidState)
	}

	if strings.TrimSpace(c.resumeText) == "" || strings.TrimSpace(c.jobDescription) == "" {
		c.errorMessage = MessageMissingInputs
		c.errorCode = errors.ErrCodeMissingInput
		c.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeMissingInput, MessageMissingInputs, nil)
	}

	input := types.TailorInput{ResumeText: c.resumeText, JobDescription: c.jobDescription}
	epoch := c.epoch
	c.errorMessage, c.errorCode = "", ""
	c.transition(types.StateLoading)
	c.mu.Unlock()

	doc, _, err := c.ai.Tailor(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if epoch != c.epoch {
		return fmt.Errorf("session was reset during tailoring: %w", ErrInvalidState)
	}
	if err != nil {
		c.errorMessage = MessageTailorFailed
		c.errorCode = errors.CodeOf(err)
		c.transition(types.StateError)
		c.logger.LogError(err, "Tailoring failed")
		return err
	}
	c.resume = doc
	c.transition(types.StateSuccess)
	return nil
}

// Refine applies the stored feedback to the current résumé. Failures keep the previous résumé.
func (c *Controller) Refine(ctx context.Context) error {
	c.mu.Lock()
	c.touch()
	if c.state != types.StateSuccess || c.resume == nil {
		c.mu.Unlock()
		return fmt.Errorf("refine requires a tailored résumé: %w", ErrInvalidState)
	}
	if c.refining {
		c.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(c.feedback) == "" {
		c.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeMissingInput, "Feedback is required", nil)
	}

	input := types.RefineInput{Resume: c.resume.Clone(), Feedback: c.feedback}
	epoch := c.epoch
	c.refining = true
	c.mu.Unlock()

	doc, _, err := c.ai.Refine(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if epoch != c.epoch {
		return fmt.Errorf("session was reset during refinement: %w", ErrInvalidState)
	}
	c.refining = false
	if err != nil {
		c.logger.LogError(err, "Refinement failed")
		return err
	}
	c.resume = doc
	c.feedback = ""
	return nil
}

// GenerateCoverLetter writes a cover letter for the current résumé and job description.
func (c *Controller) GenerateCoverLetter(ctx context.Context) error {
	c.mu.Lock()
	c.touch()
	if c.state != types.StateSuccess || c.resume == nil {
		c.mu.Unlock()
		return fmt.Errorf("cover letter requires a tailored résumé: %w", ErrInvalidState)
	}
	if c.generating {
		c.mu.Unlock()
		return ErrBusy
	}
	if strings.TrimSpace(c.jobDescription) == "" {
		c.mu.Unlock()
		return errors.NewValidationError(errors.ErrCodeMissingInput, "The job description is required", nil)
	}

	input := types.CoverLetterInput{Resume: c.resume.Clone(), JobDescription: c.jobDescription}
	epoch := c.epoch
	c.generating = true
	c.mu.Unlock()

	letter, _, err := c.ai.GenerateCoverLetter(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	if epoch != c.epoch {
		return fmt.Errorf("session was reset during cover letter generation: %w", ErrInvalidState)
	}
	c.generating = false
	if err != nil {
		c.logger.LogError(err, "Cover letter generation failed")
		return err
	}
	c.coverLetter = letter
	return nil
}

// ExportResume renders the current résumé with the additional text block.
func (c *Controller) ExportResume() (*export.File, error) {
	c.mu.Lock()
	c.touch()
	if c.state != types.StateSuccess || c.resume == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("export requires a tailored résumé: %w", ErrInvalidState)
	}
	doc := c.resume.Clone()
	opts := types.ExportOptions{AdditionalText: c.additionalText, TextColor: c.textColor}
	c.mu.Unlock()

	return c.exporter.BuildResume(doc, opts)
}

// ExportCoverLetter renders the current cover letter.
func (c *Controller) ExportCoverLetter() (*export.File, error) {
	c.mu.Lock()
	c.touch()
	if c.state != types.StateSuccess || c.resume == nil || c.coverLetter == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("export requires a generated cover letter: %w", ErrInvalidState)
	}
	letter := c.coverLetter.Clone()
	fullName := c.resume.FullName
	c.mu.Unlock()

	return c.exporter.BuildCoverLetter(letter, fullName)
}

// Reset returns the session to Idle and clears everything.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touch()
	c.epoch++
	c.resumeText, c.jobDescription = "", ""
	c.additionalText = ""
	c.textColor = types.DefaultTextColor
	c.feedback = ""
	c.resume, c.coverLetter = nil, nil
	c.errorMessage, c.errorCode = "", ""
	c.refining, c.generating = false, false
	if c.state != types.StateIdle {
		c.transition(types.StateIdle)
	}
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State          types.LifecycleState  `json:"state"`
	ResumeText     string                `json:"resumeText"`
	JobDescription string                `json:"jobDescription"`
	AdditionalText string                `json:"additionalText"`
	TextColor      string                `json:"textColor"`
	Feedback       string                `json:"feedback"`
	Resume         *types.ResumeDocument `json:"resume,omitempty"`
	CoverLetter    *types.CoverLetter    `json:"coverLetter,omitempty"`
	ErrorMessage   string                `json:"errorMessage,omitempty"`
	ErrorCode      string                `json:"errorCode,omitempty"`
	IsRefining     bool                  `json:"isRefining"`
	IsGenerating   bool                  `json:"isGeneratingCoverLetter"`
	LastActive     time.Time             `json:"lastActive"`
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:          c.state,
		ResumeText:     c.resumeText,
		JobDescription: c.jobDescription,
		AdditionalText: c.additionalText,
		TextColor:      c.textColor,
		Feedback:       c.feedback,
		Resume:         c.resume.Clone(),
		CoverLetter:    c.coverLetter.Clone(),
		ErrorMessage:   c.errorMessage,
		ErrorCode:      c.errorCode,
		IsRefining:     c.refining,
		IsGenerating:   c.generating,
		LastActive:     c.lastActive,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() types.LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// idleSince reports the last activity and whether an AI call is in flight.
func (c *Controller) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	busy := c.state == types.StateLoading || c.refining || c.generating
	return c.lastActive, busy
}
