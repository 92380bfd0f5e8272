package evaluation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/course"
	"github.com/trezcool/peereval/core/roster"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrAssignmentNotFound   = core.NewNotFoundError("Assignment not found")
	ErrNoAssignmentsCreated = errors.New("Failed to create any assignments")
	ErrNoTargetGroups       = core.NewValidationError(errors.New("the course has no group with members"))
	ErrUnknownStudent       = core.NewNotFoundError("Evaluator or teammate not found")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		AssignmentExists(ctx context.Context, courseID, groupID, evaluatorID int64, exec ...core.DBExecutor) (bool, error)
		GetAssignmentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Assignment, error)
		QueryCourseAssignments(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]AssignmentDetail, error)
		QueryStudentAssignments(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]AssignmentDetail, error)
		// CompleteAssignment stamps completed_at and reports false when the assignment does not exist.
		CompleteAssignment(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) (bool, error)
		DeleteAssignment(ctx context.Context, id int64, exec ...core.DBExecutor) (bool, error)

		CreateEvaluation(ctx context.Context, e Evaluation, exec ...core.DBExecutor) (Evaluation, error)
		CreateTarget(ctx context.Context, t Target, exec ...core.DBExecutor) (Target, error)
		QueryTeammates(ctx context.Context, courseID, groupID, evaluatorID int64, exec ...core.DBExecutor) ([]Teammate, error)

		Dashboard(ctx context.Context, exec ...core.DBExecutor) (Dashboard, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		courses  course.Repository
		students roster.Repository
	}
)

func NewService(db core.DB, repo Repository, courses course.Repository, students roster.Repository) *Service {
	return &Service{db: db, repo: repo, courses: courses, students: students}
}

// itemError is a per-item failure of a batch: recorded, never fatal.
type itemError struct {
	msg string
}

func (e itemError) Error() string { return e.msg }

func itemErrorf(format string, args ...interface{}) error {
	return &itemError{msg: fmt.Sprintf(format, args...)}
}

type target struct {
	groupID    int64
	evaluators []int64
}

// CreateAssignments expands a request into one assignment per (group, evaluator) pair, in one transaction.
// Each pair is attempted under its own savepoint: a missing student, a failed auto-enrollment, an existing
// assignment or any other failure of the pair is recorded in BatchResult.Errors and the batch goes on. When nothing could be created,
// the transaction is rolled back and ErrNoAssignmentsCreated is returned along with the per-item errors.
func (svc *Service) CreateAssignments(ctx context.Context, na NewAssignments) (BatchResult, error) {
	result := BatchResult{Created: []Assignment{}, Errors: []string{}}

	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.courses.GetCourseByID(ctx, na.CourseID, tx); err != nil {
			return err
		}

		targets, err := svc.targets(ctx, na, &result, tx)
		if err != nil {
			return err
		}

		now := NowFunc().UTC()
		n := 0
		for _, tgt := range targets {
			for _, sid := range tgt.evaluators {
				n++
				var created Assignment
				spErr := core.WithSavepoint(ctx, tx, core.SavepointName("assign", n), func() error {
					var err error
					created, err = svc.assign(ctx, na, tgt.groupID, sid, now, tx)
					return err
				})
				if spErr != nil {
					if iErr, ok := errors.Cause(spErr).(*itemError); ok {
						result.Errors = append(result.Errors, iErr.msg)
						continue
					}
					if ctx.Err() != nil {
						return spErr
					}
					// the savepoint undid the item: record it and go on with the batch
					result.Errors = append(result.Errors,
						fmt.Sprintf("Failed to assign group %d to student %d: %v", tgt.groupID, sid, errors.Cause(spErr)))
					continue
				}
				result.Created = append(result.Created, created)
			}
		}

		if len(result.Created) == 0 {
			return ErrNoAssignmentsCreated
		}
		return nil
	})
	if err != nil {
		if errors.Cause(err) == ErrNoAssignmentsCreated {
			result.Created = []Assignment{}
			return result, ErrNoAssignmentsCreated
		}
		return BatchResult{}, err
	}
	return result, nil
}

// targets lists the (group, evaluators) to assign. Unknown or empty groups are recorded as errors.
func (svc *Service) targets(ctx context.Context, na NewAssignments, result *BatchResult, tx core.DBExecutor) ([]target, error) {
	if na.Everyone {
		groupIDs, err := svc.courses.QueryMemberGroupIDs(ctx, na.CourseID, tx)
		if err != nil {
			return nil, errors.Wrap(err, "collecting course groups")
		}
		if len(groupIDs) == 0 {
			return nil, ErrNoTargetGroups
		}
		evaluators := na.EvaluatorStudentIDs
		if len(evaluators) == 0 {
			if evaluators, err = svc.courses.QueryEnrolledStudentIDs(ctx, na.CourseID, tx); err != nil {
				return nil, errors.Wrap(err, "collecting enrolled students")
			}
		}
		targets := make([]target, 0, len(groupIDs))
		for _, gid := range groupIDs {
			targets = append(targets, target{groupID: gid, evaluators: evaluators})
		}
		return targets, nil
	}

	targets := make([]target, 0, len(na.GroupIDs))
	seen := make(map[int64]bool, len(na.GroupIDs))
	for _, gid := range na.GroupIDs {
		if seen[gid] {
			continue
		}
		seen[gid] = true

		if _, err := svc.courses.GetGroupByID(ctx, gid, tx); err != nil {
			if errors.Cause(err) == course.ErrGroupNotFound {
				result.Errors = append(result.Errors, fmt.Sprintf("Group %d does not exist", gid))
				continue
			}
			return nil, errors.Wrap(err, "finding group")
		}

		evaluators := na.EvaluatorStudentIDs
		if len(evaluators) == 0 {
			members, err := svc.courses.QueryGroupMembers(ctx, na.CourseID, gid, tx)
			if err != nil {
				return nil, errors.Wrap(err, "collecting group members")
			}
			for _, m := range members {
				evaluators = append(evaluators, m.StudentID)
			}
			if len(evaluators) == 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("Group %d has no members in this course", gid))
				continue
			}
		}
		targets = append(targets, target{groupID: gid, evaluators: dedup(evaluators)})
	}
	return targets, nil
}

func (svc *Service) assign(ctx context.Context, na NewAssignments, groupID, studentID int64, now time.Time, tx core.DBExecutor) (Assignment, error) {
	st, err := svc.students.GetStudentByID(ctx, studentID, tx)
	if err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return Assignment{}, itemErrorf("Student %d does not exist", studentID)
		}
		return Assignment{}, errors.Wrap(err, "finding student")
	}

	enrolled, err := svc.courses.IsEnrolled(ctx, na.CourseID, studentID, tx)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		if _, err = svc.courses.Enroll(ctx, na.CourseID, studentID, now, tx); err != nil {
			return Assignment{}, itemErrorf("Student %d (%s) could not be auto-enrolled in the course", studentID, st.Name)
		}
	}

	exists, err := svc.repo.AssignmentExists(ctx, na.CourseID, groupID, studentID, tx)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "checking existing assignment")
	}
	if exists {
		return Assignment{}, itemErrorf("Assignment already exists for student %d (%s) in group %d", studentID, st.Name, groupID)
	}

	a := Assignment{
		CourseID:       na.CourseID,
		GroupID:        groupID,
		EvaluatorID:    studentID,
		Name:           null.NewString(na.Name, na.Name != ""),
		Points:         na.Points,
		DueDate:        na.DueDate.UTC(),
		AvailableFrom:  null.NewTime(na.AvailableFrom.UTC(), !na.AvailableFrom.IsZero()),
		AvailableUntil: null.NewTime(na.AvailableUntil.UTC(), !na.AvailableUntil.IsZero()),
		CreatedAt:      now,
	}
	created, err := svc.repo.CreateAssignment(ctx, a, tx)
	return created, errors.Wrap(err, "inserting assignment")
}

// QueryCourseAssignments lists the course's assignments by due date, with their status.
func (svc *Service) QueryCourseAssignments(ctx context.Context, courseID int64) ([]AssignmentDetail, error) {
	if _, err := svc.courses.GetCourseByID(ctx, courseID); err != nil {
		return nil, err
	}
	details, err := svc.repo.QueryCourseAssignments(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "querying course assignments")
	}
	now := NowFunc()
	for i := range details {
		details[i].Status = details[i].StatusAt(now)
	}
	return details, nil
}

// QueryStudentAssignments lists the assignments of a resolved student: overdue ones first, then the other
// open ones, then completed ones; each by due date. An unresolved student has none.
func (svc *Service) QueryStudentAssignments(ctx context.Context, res roster.Resolution) ([]AssignmentDetail, error) {
	switch res.Outcome {
	case roster.Resolved:
	case roster.Ambiguous:
		return nil, res.Err()
	default:
		return []AssignmentDetail{}, nil
	}

	details, err := svc.repo.QueryStudentAssignments(ctx, res.Student.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student assignments")
	}
	now := NowFunc()
	for i := range details {
		details[i].Status = details[i].StatusAt(now)
	}
	SortForStudent(details)
	return details, nil
}

// SortForStudent orders assignments overdue first, then open, then completed; each by due date.
func SortForStudent(details []AssignmentDetail) {
	rank := func(s Status) int {
		switch s {
		case StatusOverdue:
			return 0
		case StatusCompleted:
			return 2
		default:
			return 1
		}
	}
	sort.SliceStable(details, func(i, j int) bool {
		ri, rj := rank(details[i].Status), rank(details[j].Status)
		if ri != rj {
			return ri < rj
		}
		return details[i].DueDate.Before(details[j].DueDate)
	})
}

func (svc *Service) Complete(ctx context.Context, id int64) (Assignment, error) {
	ok, err := svc.repo.CompleteAssignment(ctx, id, NowFunc().UTC())
	if err != nil {
		return Assignment{}, errors.Wrap(err, "completing assignment")
	}
	if !ok {
		return Assignment{}, ErrAssignmentNotFound
	}
	return svc.repo.GetAssignmentByID(ctx, id)
}

func (svc *Service) Delete(ctx context.Context, id int64) error {
	ok, err := svc.repo.DeleteAssignment(ctx, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if !ok {
		return ErrAssignmentNotFound
	}
	return nil
}

// Teammates lists the other members of the resolved evaluator's group within the course.
func (svc *Service) Teammates(ctx context.Context, courseID, groupID int64, res roster.Resolution) (Teammates, error) {
	if err := res.Err(); err != nil {
		return Teammates{}, err
	}
	mates, err := svc.repo.QueryTeammates(ctx, courseID, groupID, res.Student.ID)
	if err != nil {
		return Teammates{}, errors.Wrap(err, "querying teammates")
	}
	return Teammates{Teammates: mates, EvaluatorID: res.Student.ID}, nil
}

func dedup(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
