package reports

import (
	"fmt"
	"strings"
)

// WizardStep is one screen of the submission wizard
type WizardStep int

const (
	StepProjectInfo WizardStep = iota + 1
	StepLocation
	StepMedia
	StepReview
)

// StepCount is the number of wizard steps
const StepCount = int(StepReview)

// String returns the step's display name
func (s WizardStep) String() string {
	switch s {
	case StepProjectInfo:
		return "Project Information"
	case StepLocation:
		return "Location & Area"
	case StepMedia:
		return "Media Upload"
	case StepReview:
		return "Review & Submit"
	default:
		return fmt.Sprintf("Step %d", int(s))
	}
}

// ValidationResult carries per-field errors for one wizard step.
// An empty FieldErrors map means the step passed.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

func validationFailure(fieldErrors map[string]string) ValidationResult {
	return ValidationResult{Valid: false, FieldErrors: fieldErrors}
}

func validationSuccess() ValidationResult {
	return ValidationResult{Valid: true}
}

// DraftValidator applies step-scoped field rules to a report draft
type DraftValidator struct{}

// NewDraftValidator creates a draft validator
func NewDraftValidator() *DraftValidator {
	return &DraftValidator{}
}

// ValidateStep applies the field rules for one step. Per-field failures
// block advancement; the cross-step media rule lives in the wizard since
// it depends on the staging area, not the draft.
func (v *DraftValidator) ValidateStep(step WizardStep, draft *ReportDraft) ValidationResult {
	errs := map[string]string{}

	switch step {
	case StepProjectInfo:
		if strings.TrimSpace(draft.Title) == "" {
			errs["title"] = "Title is required"
		}
		if strings.TrimSpace(draft.ProjectName) == "" {
			errs["project_name"] = "Project name is required"
		}
		if strings.TrimSpace(draft.CommunityName) == "" {
			errs["community_name"] = "Community name is required"
		}
		if strings.TrimSpace(draft.ActivityType) == "" {
			errs["activity_type"] = "Activity type is required"
		} else if !IsValidActivityType(draft.ActivityType) {
			errs["activity_type"] = "Unknown activity type"
		}

	case StepLocation:
		if draft.AreaCovered < 0.1 {
			errs["area_covered"] = "Area must be greater than 0"
		}
		if strings.TrimSpace(draft.LocationCoordinates) == "" {
			errs["location_coordinates"] = "Location coordinates are required"
		}
		if len(strings.TrimSpace(draft.Description)) < 10 {
			errs["description"] = "Description must be at least 10 characters"
		}

	case StepMedia:
		if draft.EstimatedCredits < 1 {
			errs["estimated_credits"] = "Estimated credits must be at least 1"
		}

	case StepReview:
		// The review step re-checks everything entered so far
		for _, prior := range []WizardStep{StepProjectInfo, StepLocation, StepMedia} {
			result := v.ValidateStep(prior, draft)
			for field, msg := range result.FieldErrors {
				errs[field] = msg
			}
		}
	}

	if len(errs) > 0 {
		return validationFailure(errs)
	}
	return validationSuccess()
}

// ValidateDraft applies every step's rules at once, for final submission
func (v *DraftValidator) ValidateDraft(draft *ReportDraft) ValidationResult {
	return v.ValidateStep(StepReview, draft)
}

// Wizard tracks the submission flow through its steps. Steps advance
// strictly in order; moving backward is always permitted and never
// clears entered values.
type Wizard struct {
	current   WizardStep
	validator *DraftValidator
	draft     *ReportDraft
	staging   *Staging
}

// NewWizard starts a wizard at the first step over the given draft and
// staging area
func NewWizard(draft *ReportDraft, staging *Staging) *Wizard {
	return &Wizard{
		current:   StepProjectInfo,
		validator: NewDraftValidator(),
		draft:     draft,
		staging:   staging,
	}
}

// Current returns the current step
func (w *Wizard) Current() WizardStep {
	return w.current
}

// Draft returns the wizard's draft
func (w *Wizard) Draft() *ReportDraft {
	return w.draft
}

// Progress returns wizard completion as a fraction of steps reached
func (w *Wizard) Progress() float64 {
	return float64(w.current) / float64(StepCount)
}

// Next validates the current step and advances on success. Advancing past
// the media step additionally requires at least one staged proof file,
// even when every per-field rule passes.
func (w *Wizard) Next() ValidationResult {
	result := w.validator.ValidateStep(w.current, w.draft)
	if !result.Valid {
		return result
	}

	if w.current == StepMedia && !w.staging.CanSubmit() {
		return validationFailure(map[string]string{
			"proof_files": "Please upload at least one photo, GPS file, or drone report",
		})
	}

	if w.current < StepReview {
		w.current++
	}
	return validationSuccess()
}

// Previous moves one step back. It never fails and never touches the draft.
func (w *Wizard) Previous() {
	if w.current > StepProjectInfo {
		w.current--
	}
}
