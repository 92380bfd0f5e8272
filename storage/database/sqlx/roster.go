package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/roster"
)

const (
	studentColumns   = "id, name, email, account_id, created_at"
	professorColumns = "id, name, email, created_at"
)

type rosterRepository struct {
	repository
}

var _ roster.Repository = (*rosterRepository)(nil)

func NewRosterRepository(db *sqlx.DB) *rosterRepository {
	return &rosterRepository{repository{db: db}}
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, st roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	ex := repo.exec(exec)
	q := "INSERT INTO students (name, email, account_id, created_at) VALUES (?, ?, ?, ?) RETURNING id"
	if err := ex.QueryRowxContext(ctx, ex.Rebind(q), st.Name, st.Email, st.AccountID, st.CreatedAt).Scan(&st.ID); err != nil {
		return roster.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}

func (repo *rosterRepository) getStudent(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) (roster.Student, error) {
	var st roster.Student
	q := "SELECT " + studentColumns + " FROM students WHERE " + where
	err := ex.GetContext(ctx, &st, ex.Rebind(q), args...)
	return st, trapNoRowsErr(err, roster.ErrStudentNotFound)
}

func (repo *rosterRepository) queryStudents(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) ([]roster.Student, error) {
	students := make([]roster.Student, 0)
	q := "SELECT " + studentColumns + " FROM students WHERE " + where
	if err := ex.SelectContext(ctx, &students, ex.Rebind(q), args...); err != nil {
		return nil, err
	}
	return students, nil
}

func (repo *rosterRepository) GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (roster.Student, error) {
	return repo.getStudent(ctx, repo.exec(exec), "id = ?", id)
}

func (repo *rosterRepository) GetStudentByName(ctx context.Context, name string, exec ...core.DBExecutor) (roster.Student, error) {
	return repo.getStudent(ctx, repo.exec(exec), "name = ? ORDER BY created_at, id LIMIT 1", name)
}

func (repo *rosterRepository) GetStudentByAccountID(ctx context.Context, accountID int64, exec ...core.DBExecutor) (roster.Student, error) {
	return repo.getStudent(ctx, repo.exec(exec), "account_id = ?", accountID)
}

func (repo *rosterRepository) QueryStudentsByEmail(ctx context.Context, email string, exec ...core.DBExecutor) ([]roster.Student, error) {
	return repo.queryStudents(ctx, repo.exec(exec), "LOWER(email) = ? ORDER BY id", email)
}

func (repo *rosterRepository) QueryUnlinkedStudents(ctx context.Context, exec ...core.DBExecutor) ([]roster.Student, error) {
	return repo.queryStudents(ctx, repo.exec(exec), "account_id IS NULL ORDER BY id")
}

func (repo *rosterRepository) LinkStudent(ctx context.Context, studentID, accountID int64, email string, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	// an account holds at most one student
	q := `UPDATE students SET account_id = ?, email = COALESCE(NULLIF(email, ''), NULLIF(?, ''))
		WHERE id = ? AND account_id IS NULL
		AND NOT EXISTS (SELECT 1 FROM students other WHERE other.account_id = ?)`
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind(q), accountID, email, studentID, accountID))
	if err != nil {
		return false, errors.Wrap(err, "linking student")
	}
	return n > 0, nil
}

func (repo *rosterRepository) QueryStudents(ctx context.Context, filter roster.StudentFilter, exec ...core.DBExecutor) ([]roster.Student, int, error) {
	ex := repo.exec(exec)

	where := "1 = 1"
	var args []interface{}
	if filter.Search != "" {
		where = "(LOWER(name) LIKE ? OR LOWER(COALESCE(email, '')) LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := ex.GetContext(ctx, &total, ex.Rebind("SELECT COUNT(*) FROM students WHERE "+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting students")
	}

	students, err := repo.queryStudents(
		ctx, ex, where+" ORDER BY name, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset())...,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying students")
	}
	return students, total, nil
}

func (repo *rosterRepository) CreateProfessor(ctx context.Context, prof roster.Professor, exec ...core.DBExecutor) (roster.Professor, error) {
	ex := repo.exec(exec)
	q := "INSERT INTO professors (name, email, created_at) VALUES (?, ?, ?) RETURNING id"
	if err := ex.QueryRowxContext(ctx, ex.Rebind(q), prof.Name, prof.Email, prof.CreatedAt).Scan(&prof.ID); err != nil {
		return roster.Professor{}, errors.Wrap(err, "inserting professor")
	}
	return prof, nil
}

func (repo *rosterRepository) queryProfessors(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) ([]roster.Professor, error) {
	profs := make([]roster.Professor, 0)
	q := "SELECT " + professorColumns + " FROM professors WHERE " + where
	if err := ex.SelectContext(ctx, &profs, ex.Rebind(q), args...); err != nil {
		return nil, err
	}
	return profs, nil
}

func (repo *rosterRepository) GetProfessorByID(ctx context.Context, id int64, exec ...core.DBExecutor) (roster.Professor, error) {
	ex := repo.exec(exec)
	var prof roster.Professor
	err := ex.GetContext(ctx, &prof, ex.Rebind("SELECT "+professorColumns+" FROM professors WHERE id = ?"), id)
	return prof, trapNoRowsErr(err, roster.ErrProfessorMissing)
}

func (repo *rosterRepository) QueryProfessorsByEmail(ctx context.Context, email string, exec ...core.DBExecutor) ([]roster.Professor, error) {
	return repo.queryProfessors(ctx, repo.exec(exec), "LOWER(email) = ? ORDER BY id", email)
}

func (repo *rosterRepository) QueryProfessorsWithoutEmail(ctx context.Context, exec ...core.DBExecutor) ([]roster.Professor, error) {
	return repo.queryProfessors(ctx, repo.exec(exec), "email IS NULL OR email = '' ORDER BY id")
}

func (repo *rosterRepository) UpdateProfessor(ctx context.Context, prof roster.Professor, exec ...core.DBExecutor) (roster.Professor, error) {
	ex := repo.exec(exec)
	n, err := rowsAffected(ex.ExecContext(
		ctx, ex.Rebind("UPDATE professors SET name = ?, email = ? WHERE id = ?"),
		prof.Name, prof.Email, prof.ID,
	))
	if err != nil {
		return roster.Professor{}, errors.Wrap(err, "updating professor")
	}
	if n == 0 {
		return roster.Professor{}, roster.ErrProfessorMissing
	}
	return prof, nil
}

func (repo *rosterRepository) QueryProfessorSummaries(ctx context.Context, exec ...core.DBExecutor) ([]roster.ProfessorSummary, error) {
	ex := repo.exec(exec)
	q := `SELECT p.id, p.name, p.email,
			(SELECT a.username FROM accounts a WHERE a.role = 'professor' AND LOWER(a.email) = LOWER(p.email)) AS username,
			(SELECT COUNT(*) FROM courses c WHERE c.professor_id = p.id) AS course_count
		FROM professors p
		WHERE EXISTS (SELECT 1 FROM courses c WHERE c.professor_id = p.id)
		ORDER BY p.name, p.id`
	summaries := make([]roster.ProfessorSummary, 0)
	if err := ex.SelectContext(ctx, &summaries, ex.Rebind(q)); err != nil {
		return nil, errors.Wrap(err, "querying professors")
	}
	return summaries, nil
}
