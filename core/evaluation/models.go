package evaluation

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
)

// Status of an assignment, derived at read time.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusOverdue      Status = "overdue"
	StatusNotAvailable Status = "not_available"
	StatusExpired      Status = "expired"
	StatusPending      Status = "pending"
)

type Assignment struct {
	ID             int64       `json:"id" db:"id"`
	CourseID       int64       `json:"course_id" db:"course_id"`
	GroupID        int64       `json:"group_id" db:"group_id"`
	EvaluatorID    int64       `json:"evaluator_id" db:"evaluator_id"`
	Name           null.String `json:"assignment_name" db:"name"`
	Points         int         `json:"points" db:"points"`
	DueDate        time.Time   `json:"due_date" db:"due_date"`               // UTC
	AvailableFrom  null.Time   `json:"available_from" db:"available_from"`   // UTC
	AvailableUntil null.Time   `json:"available_until" db:"available_until"` // UTC
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`           // UTC
	CompletedAt    null.Time   `json:"completed_at" db:"completed_at"`       // UTC
}

// StatusAt derives the status of the assignment at `now`. Precedence:
// completed, overdue, not_available, expired, pending.
func (a Assignment) StatusAt(now time.Time) Status {
	switch {
	case a.CompletedAt.Valid:
		return StatusCompleted
	case a.DueDate.Before(now):
		return StatusOverdue
	case a.AvailableFrom.Valid && a.AvailableFrom.Time.After(now):
		return StatusNotAvailable
	case a.AvailableUntil.Valid && a.AvailableUntil.Time.Before(now):
		return StatusExpired
	default:
		return StatusPending
	}
}

// AssignmentDetail is an assignment with the names of what it references and its status.
type AssignmentDetail struct {
	Assignment
	EvaluatorName  string      `json:"evaluator_name" db:"evaluator_name"`
	EvaluatorEmail null.String `json:"evaluator_email" db:"evaluator_email"`
	GroupName      string      `json:"group_name" db:"group_name"`
	CourseName     string      `json:"course_name" db:"course_name"`
	Semester       string      `json:"semester" db:"semester"`
	Status         Status      `json:"status" db:"-"`
}

// NewAssignments asks for one assignment per (group, evaluator) pair.
//
// With Everyone, every group having members in the course is targeted and every enrolled student evaluates.
// Otherwise GroupIDs are targeted and evaluators are EvaluatorStudentIDs, or each group's members when empty.
type NewAssignments struct {
	CourseID            int64    `json:"course_id" validate:"required,gt=0"`
	GroupIDs            []int64  `json:"group_ids" validate:"dive,gt=0"`
	Everyone            bool     `json:"everyone"`
	EvaluatorStudentIDs []int64  `json:"evaluator_student_ids" validate:"dive,gt=0"`
	DueDate             DateTime `json:"due_date"`
	Name                string   `json:"assignment_name" validate:"max=200"`
	Points              int      `json:"points" validate:"gte=0"`
	AvailableFrom       DateTime `json:"available_from"`
	AvailableUntil      DateTime `json:"available_until"`
}

func (na *NewAssignments) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	if err := validate.Struct(na); err != nil {
		return err
	}

	var flds []core.FieldError
	if na.DueDate.IsZero() {
		flds = append(flds, core.FieldError{Field: "due_date", Error: "this field is required"})
	}
	if !na.Everyone && len(na.GroupIDs) == 0 {
		flds = append(flds, core.FieldError{Field: "group_ids", Error: "select at least one group, or everyone"})
	}
	if !na.AvailableFrom.IsZero() && !na.AvailableUntil.IsZero() && na.AvailableUntil.Before(na.AvailableFrom.Time) {
		flds = append(flds, core.FieldError{Field: "available_until", Error: "must be after available_from"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid assignment request"), flds...)
	}
	return nil
}

// BatchResult is the outcome of an assignment batch: what was created and what was skipped.
type BatchResult struct {
	Created []Assignment `json:"assignments"`
	Errors  []string     `json:"errors"`
}

type Evaluation struct {
	ID          int64     `json:"id" db:"id"`
	EvaluatorID int64     `json:"evaluator_id" db:"evaluator_id"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"` // UTC
}

type Target struct {
	ID                int64  `json:"id" db:"id"`
	EvaluationID      int64  `json:"evaluation_id" db:"evaluation_id"`
	EvaluateeID       int64  `json:"evaluatee_id" db:"evaluatee_id"`
	ContributionScore int    `json:"contribution_score" db:"contribution_score"`
	PlanMgmtScore     int    `json:"plan_mgmt_score" db:"plan_mgmt_score"`
	TeamClimateScore  int    `json:"team_climate_score" db:"team_climate_score"`
	ConflictResScore  int    `json:"conflict_res_score" db:"conflict_res_score"`
	OverallRating     int    `json:"overall_rating" db:"overall_rating"`
	Feedback          string `json:"feedback" db:"feedback"`
}

// Submission is a stored evaluation and its single scored target.
type Submission struct {
	Evaluation
	Target Target `json:"target"`
}

// NewEvaluation is one evaluator's scores for one teammate.
type NewEvaluation struct {
	TeammateID        int64  `json:"teammate_id" validate:"required,gt=0,nefield=EvaluatorID"`
	EvaluatorID       int64  `json:"evaluator_id" validate:"required,gt=0"`
	Feedback          string `json:"feedback" validate:"max=5000"`
	ContributionScore *int   `json:"contribution_score" validate:"required,score"`
	PlanMgmtScore     *int   `json:"plan_mgmt_score" validate:"required,score"`
	TeamClimateScore  *int   `json:"team_climate_score" validate:"required,score"`
	ConflictResScore  *int   `json:"conflict_res_score" validate:"required,score"`
	OverallRating     *int   `json:"overall_rating" validate:"required,score"`
}

func (ne *NewEvaluation) Validate(validate *validator.Validate) error {
	ne.Feedback = core.CleanString(ne.Feedback)
	return validate.Struct(ne)
}

// Teammates are the other members of an evaluator's group.
type Teammates struct {
	Teammates   []Teammate `json:"teammates"`
	EvaluatorID int64      `json:"evaluator_id"`
}

type Teammate struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
