package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/evaluation"
)

const (
	assignmentColumns = `id, course_id, group_id, evaluator_id, name, points, due_date,
		available_from, available_until, created_at, completed_at`
	assignmentDetailSelect = `SELECT a.id, a.course_id, a.group_id, a.evaluator_id, a.name, a.points, a.due_date,
			a.available_from, a.available_until, a.created_at, a.completed_at,
			s.name AS evaluator_name, s.email AS evaluator_email,
			g.name AS group_name, c.name AS course_name, c.semester
		FROM evaluation_assignments a
		JOIN students s ON s.id = a.evaluator_id
		JOIN peer_groups g ON g.id = a.group_id
		JOIN courses c ON c.id = a.course_id`
)

type evaluationRepository struct {
	repository
}

var _ evaluation.Repository = (*evaluationRepository)(nil)

func NewEvaluationRepository(db *sqlx.DB) *evaluationRepository {
	return &evaluationRepository{repository{db: db}}
}

func (repo *evaluationRepository) CreateAssignment(ctx context.Context, a evaluation.Assignment, exec ...core.DBExecutor) (evaluation.Assignment, error) {
	ex := repo.exec(exec)
	q := `INSERT INTO evaluation_assignments
			(course_id, group_id, evaluator_id, name, points, due_date, available_from, available_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := ex.QueryRowxContext(
		ctx, ex.Rebind(q),
		a.CourseID, a.GroupID, a.EvaluatorID, a.Name, a.Points, a.DueDate, a.AvailableFrom, a.AvailableUntil, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return evaluation.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo *evaluationRepository) AssignmentExists(ctx context.Context, courseID, groupID, evaluatorID int64, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	var count int
	q := "SELECT COUNT(*) FROM evaluation_assignments WHERE course_id = ? AND group_id = ? AND evaluator_id = ?"
	if err := ex.GetContext(ctx, &count, ex.Rebind(q), courseID, groupID, evaluatorID); err != nil {
		return false, errors.Wrap(err, "checking assignment")
	}
	return count > 0, nil
}

func (repo *evaluationRepository) GetAssignmentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (evaluation.Assignment, error) {
	ex := repo.exec(exec)
	var a evaluation.Assignment
	err := ex.GetContext(ctx, &a, ex.Rebind("SELECT "+assignmentColumns+" FROM evaluation_assignments WHERE id = ?"), id)
	return a, trapNoRowsErr(err, evaluation.ErrAssignmentNotFound)
}

func (repo *evaluationRepository) queryDetails(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) ([]evaluation.AssignmentDetail, error) {
	details := make([]evaluation.AssignmentDetail, 0)
	q := assignmentDetailSelect + " WHERE " + where + " ORDER BY a.due_date, a.id"
	if err := ex.SelectContext(ctx, &details, ex.Rebind(q), args...); err != nil {
		return nil, err
	}
	return details, nil
}

func (repo *evaluationRepository) QueryCourseAssignments(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]evaluation.AssignmentDetail, error) {
	return repo.queryDetails(ctx, repo.exec(exec), "a.course_id = ?", courseID)
}

func (repo *evaluationRepository) QueryStudentAssignments(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]evaluation.AssignmentDetail, error) {
	return repo.queryDetails(ctx, repo.exec(exec), "a.evaluator_id = ?", studentID)
}

func (repo *evaluationRepository) CompleteAssignment(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	q := "UPDATE evaluation_assignments SET completed_at = COALESCE(completed_at, ?) WHERE id = ?"
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind(q), at, id))
	if err != nil {
		return false, errors.Wrap(err, "completing assignment")
	}
	return n > 0, nil
}

func (repo *evaluationRepository) DeleteAssignment(ctx context.Context, id int64, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind("DELETE FROM evaluation_assignments WHERE id = ?"), id))
	if err != nil {
		return false, errors.Wrap(err, "deleting assignment")
	}
	return n > 0, nil
}

func (repo *evaluationRepository) CreateEvaluation(ctx context.Context, e evaluation.Evaluation, exec ...core.DBExecutor) (evaluation.Evaluation, error) {
	ex := repo.exec(exec)
	q := "INSERT INTO evaluations (evaluator_id, submitted_at) VALUES (?, ?) RETURNING id"
	if err := ex.QueryRowxContext(ctx, ex.Rebind(q), e.EvaluatorID, e.SubmittedAt).Scan(&e.ID); err != nil {
		if IsForeignKeyViolation(err) {
			return evaluation.Evaluation{}, evaluation.ErrUnknownStudent
		}
		return evaluation.Evaluation{}, errors.Wrap(err, "inserting evaluation")
	}
	return e, nil
}

func (repo *evaluationRepository) CreateTarget(ctx context.Context, t evaluation.Target, exec ...core.DBExecutor) (evaluation.Target, error) {
	ex := repo.exec(exec)
	q := `INSERT INTO evaluation_targets (evaluation_id, evaluatee_id, contribution_score, plan_mgmt_score,
			team_climate_score, conflict_res_score, overall_rating, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := ex.QueryRowxContext(
		ctx, ex.Rebind(q),
		t.EvaluationID, t.EvaluateeID, t.ContributionScore, t.PlanMgmtScore,
		t.TeamClimateScore, t.ConflictResScore, t.OverallRating, t.Feedback,
	).Scan(&t.ID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return evaluation.Target{}, evaluation.ErrUnknownStudent
		}
		return evaluation.Target{}, errors.Wrap(err, "inserting evaluation target")
	}
	return t, nil
}

func (repo *evaluationRepository) QueryTeammates(ctx context.Context, courseID, groupID, evaluatorID int64, exec ...core.DBExecutor) ([]evaluation.Teammate, error) {
	ex := repo.exec(exec)
	q := `SELECT DISTINCT s.id, s.name
		FROM group_memberships gm
		JOIN students s ON s.id = gm.student_id
		WHERE gm.course_id = ? AND gm.group_id = ? AND gm.student_id <> ?
		ORDER BY s.name, s.id`
	mates := make([]evaluation.Teammate, 0)
	if err := ex.SelectContext(ctx, &mates, ex.Rebind(q), courseID, groupID, evaluatorID); err != nil {
		return nil, errors.Wrap(err, "querying teammates")
	}
	return mates, nil
}

func (repo *evaluationRepository) Dashboard(ctx context.Context, exec ...core.DBExecutor) (evaluation.Dashboard, error) {
	ex := repo.exec(exec)
	d := evaluation.Dashboard{}

	counts := []struct {
		dest  *int
		query string
	}{
		{&d.TotalEvaluations, "SELECT COUNT(*) FROM evaluations"},
		{&d.TotalStudents, "SELECT COUNT(*) FROM students"},
		{&d.SubmittingStudents, "SELECT COUNT(DISTINCT evaluator_id) FROM evaluations"},
		{&d.TotalAssignments, "SELECT COUNT(*) FROM evaluation_assignments"},
		{&d.CompletedAssignments, "SELECT COUNT(*) FROM evaluation_assignments WHERE completed_at IS NOT NULL"},
	}
	for _, c := range counts {
		if err := ex.GetContext(ctx, c.dest, c.query); err != nil {
			return evaluation.Dashboard{}, errors.Wrapf(err, "running %q", c.query)
		}
	}

	q := "SELECT COALESCE(AVG(CAST(overall_rating AS DOUBLE PRECISION)), 0) FROM evaluation_targets"
	if err := ex.GetContext(ctx, &d.OverallAverageScore, q); err != nil {
		return evaluation.Dashboard{}, errors.Wrap(err, "averaging ratings")
	}

	lists := []struct {
		dest  interface{}
		query string
	}{
		{&d.StudentScores, `SELECT s.id AS student_id, s.name AS student_name,
				AVG(CAST(t.overall_rating AS DOUBLE PRECISION)) AS average_score,
				COUNT(t.id) AS evaluation_count
			FROM evaluation_targets t
			JOIN students s ON s.id = t.evaluatee_id
			GROUP BY s.id, s.name
			ORDER BY average_score DESC, s.name`},
		{&d.StudentsPerGroup, `SELECT g.id AS group_id, g.name AS group_name, c.name AS course_name,
				COUNT(gm.student_id) AS student_count
			FROM group_memberships gm
			JOIN peer_groups g ON g.id = gm.group_id
			JOIN courses c ON c.id = gm.course_id
			GROUP BY g.id, g.name, c.id, c.name
			ORDER BY c.name, g.name`},
		{&d.ProfessorStats, `SELECT p.id AS professor_id, p.name AS professor_name,
				(SELECT COUNT(*) FROM courses c WHERE c.professor_id = p.id) AS course_count,
				(SELECT COUNT(DISTINCT e.student_id) FROM enrollments e
					JOIN courses c ON c.id = e.course_id WHERE c.professor_id = p.id) AS student_count,
				(SELECT COUNT(*) FROM evaluation_assignments a
					JOIN courses c ON c.id = a.course_id WHERE c.professor_id = p.id) AS assignment_count
			FROM professors p
			ORDER BY p.name, p.id`},
		{&d.AssignmentsPerGroup, `SELECT g.id AS group_id, g.name AS group_name, COUNT(a.id) AS assignment_count
			FROM evaluation_assignments a
			JOIN peer_groups g ON g.id = a.group_id
			GROUP BY g.id, g.name
			ORDER BY g.name, g.id`},
		{&d.AssignmentsPerSemester, `SELECT c.semester, COUNT(a.id) AS scheduled_count
			FROM evaluation_assignments a
			JOIN courses c ON c.id = a.course_id
			GROUP BY c.semester
			ORDER BY c.semester DESC`},
	}
	for _, l := range lists {
		if err := ex.SelectContext(ctx, l.dest, l.query); err != nil {
			return evaluation.Dashboard{}, errors.Wrap(err, "aggregating dashboard")
		}
	}

	// empty lists rather than nulls
	if d.StudentScores == nil {
		d.StudentScores = []evaluation.StudentScore{}
	}
	if d.StudentsPerGroup == nil {
		d.StudentsPerGroup = []evaluation.GroupSize{}
	}
	if d.ProfessorStats == nil {
		d.ProfessorStats = []evaluation.ProfessorStat{}
	}
	if d.AssignmentsPerGroup == nil {
		d.AssignmentsPerGroup = []evaluation.GroupAssignments{}
	}
	if d.AssignmentsPerSemester == nil {
		d.AssignmentsPerSemester = []evaluation.SemesterAssignments{}
	}
	return d, nil
}
