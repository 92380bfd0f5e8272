package roster

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
)

type Student struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Email     null.String `json:"email" db:"email"`
	AccountID null.Int64  `json:"account_id" db:"account_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

type Professor struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Email     null.String `json:"email" db:"email"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
}

// ProfessorSummary is a professor owning at least one course.
type ProfessorSummary struct {
	ID          int64       `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	Email       null.String `json:"email" db:"email"`
	Username    null.String `json:"username" db:"username"`
	CourseCount int         `json:"course_count" db:"course_count"`
}

type StudentFilter struct {
	Search string `query:"search"`
	core.Pagination
}

func (f *StudentFilter) Clean() {
	f.Search = core.CleanString(f.Search, true /* lower */)
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Page < 1 {
		f.Page = 1
	}
}

// ImportReport sums up a CSV import.
type ImportReport struct {
	SuccessCount   int      `json:"success_count"`
	DuplicateCount int      `json:"duplicate_count"`
	ErrorCount     int      `json:"error_count"`
	Errors         []string `json:"errors"`
}

func (r *ImportReport) addError(msg string) {
	r.ErrorCount++
	r.Errors = append(r.Errors, msg)
}
