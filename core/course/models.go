package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
)

type Course struct {
	ID          int64       `json:"id" db:"id"`
	ProfessorID int64       `json:"professor_id" db:"professor_id"`
	Name        string      `json:"course_name" db:"name"`
	Semester    string      `json:"semester" db:"semester"`
	ClassTime   null.String `json:"class_time" db:"class_time"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
}

// CourseDetail is a course with its professor and enrollment count.
type CourseDetail struct {
	Course
	ProfessorName  string      `json:"professor_name" db:"professor_name"`
	ProfessorEmail null.String `json:"professor_email" db:"professor_email"`
	StudentCount   int         `json:"student_count" db:"student_count"`
}

type Group struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"group_name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// GroupSummary is a group with its member count within one course.
type GroupSummary struct {
	Group
	StudentCount int `json:"student_count" db:"student_count"`
}

// RosterEntry is an enrolled student and their group in the course, if any.
type RosterEntry struct {
	StudentID int64       `json:"student_id" db:"student_id"`
	Name      string      `json:"name" db:"name"`
	Email     null.String `json:"email" db:"email"`
	GroupID   null.Int64  `json:"group_id" db:"group_id"`
}

// Member is a student belonging to a group.
type Member struct {
	StudentID int64       `json:"student_id" db:"student_id"`
	Name      string      `json:"name" db:"name"`
	Email     null.String `json:"email" db:"email"`
}

// DeleteReport counts the rows removed at each step of a course deletion.
type DeleteReport struct {
	CourseID             int64 `json:"course_id"`
	MembershipsDeleted   int64 `json:"memberships_deleted"`
	AssignmentsDeleted   int64 `json:"assignments_deleted"`
	OrphanGroupsDeleted  int64 `json:"orphan_groups_deleted"`
	EnrollmentsDeleted   int64 `json:"enrollments_deleted"`
	CoursesDeleted       int64 `json:"courses_deleted"`
	SharedGroupsRetained int   `json:"shared_groups_retained"`
}

// RosterReport sums up a roster upload.
type RosterReport struct {
	SuccessCount   int      `json:"success_count"`
	DuplicateCount int      `json:"duplicate_count"`
	CreatedCount   int      `json:"created_count"`
	ErrorCount     int      `json:"error_count"`
	Errors         []string `json:"errors"`
}

// MembershipReport sums up an addition of students to a group.
type MembershipReport struct {
	SuccessCount     int `json:"success_count"`
	DuplicateCount   int `json:"duplicate_count"`
	NotEnrolledCount int `json:"not_enrolled_count"`
}

// NewCourse contains information needed to create a Course.
type NewCourse struct {
	Name        string `json:"course_name" validate:"required,notblank,max=200"`
	Semester    string `json:"semester" validate:"required,notblank,max=50"`
	ClassTime   string `json:"class_time" validate:"max=100"`
	ProfessorID int64  `json:"professor_id" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Semester = core.CleanString(nc.Semester)
	nc.ClassTime = core.CleanString(nc.ClassTime)
	return validate.Struct(nc)
}

type NewGroup struct {
	Name string `json:"group_name" validate:"required,notblank,max=100"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

type AddMembers struct {
	StudentIDs []int64 `json:"student_ids" validate:"required,min=1,dive,gt=0"`
}

func (am *AddMembers) Validate(validate *validator.Validate) error {
	return validate.Struct(am)
}
