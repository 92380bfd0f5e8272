package evaluation

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

type SubmissionRate struct {
	Submitted  int     `json:"submitted"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

type CompletionRate struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

type StudentScore struct {
	StudentID       int64   `json:"student_id" db:"student_id"`
	StudentName     string  `json:"student_name" db:"student_name"`
	AverageScore    float64 `json:"average_score" db:"average_score"`
	EvaluationCount int     `json:"evaluation_count" db:"evaluation_count"`
}

type GroupSize struct {
	GroupID      int64  `json:"group_id" db:"group_id"`
	GroupName    string `json:"group_name" db:"group_name"`
	CourseName   string `json:"course_name" db:"course_name"`
	StudentCount int    `json:"student_count" db:"student_count"`
}

type ProfessorStat struct {
	ProfessorID     int64  `json:"professor_id" db:"professor_id"`
	ProfessorName   string `json:"professor_name" db:"professor_name"`
	CourseCount     int    `json:"course_count" db:"course_count"`
	StudentCount    int    `json:"student_count" db:"student_count"`
	AssignmentCount int    `json:"assignment_count" db:"assignment_count"`
}

type GroupAssignments struct {
	GroupID         int64  `json:"group_id" db:"group_id"`
	GroupName       string `json:"group_name" db:"group_name"`
	AssignmentCount int    `json:"assignment_count" db:"assignment_count"`
}

type SemesterAssignments struct {
	Semester       string `json:"semester" db:"semester"`
	ScheduledCount int    `json:"scheduled_count" db:"scheduled_count"`
}

// Dashboard aggregates the evaluation activity of every course.
type Dashboard struct {
	TotalEvaluations       int                   `json:"total_evaluations"`
	OverallAverageScore    float64               `json:"overall_average_score"`
	TotalStudents          int                   `json:"total_students"`
	SubmittingStudents     int                   `json:"-"`
	TotalAssignments       int                   `json:"-"`
	CompletedAssignments   int                   `json:"-"`
	SubmissionRate         SubmissionRate        `json:"submission_rate"`
	CompletionRate         CompletionRate        `json:"completion_rate"`
	StudentScores          []StudentScore        `json:"student_scores"`
	StudentsPerGroup       []GroupSize           `json:"students_per_group"`
	ProfessorStats         []ProfessorStat       `json:"professor_stats"`
	AssignmentsPerGroup    []GroupAssignments    `json:"assignments_per_group"`
	AssignmentsPerSemester []SemesterAssignments `json:"evaluations_per_semester"`
}

func (svc *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	d, err := svc.repo.Dashboard(ctx)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "aggregating dashboard")
	}
	d.OverallAverageScore = round2(d.OverallAverageScore)
	for i := range d.StudentScores {
		d.StudentScores[i].AverageScore = round2(d.StudentScores[i].AverageScore)
	}
	d.SubmissionRate = SubmissionRate{
		Submitted:  d.SubmittingStudents,
		Total:      d.TotalStudents,
		Percentage: percentage(d.SubmittingStudents, d.TotalStudents),
	}
	d.CompletionRate = CompletionRate{
		Completed:  d.CompletedAssignments,
		Total:      d.TotalAssignments,
		Percentage: percentage(d.CompletedAssignments, d.TotalAssignments),
	}
	return d, nil
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
