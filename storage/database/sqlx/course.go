package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/course"
)

const (
	courseColumns      = "id, professor_id, name, semester, class_time, created_at"
	courseDetailSelect = `SELECT c.id, c.professor_id, c.name, c.semester, c.class_time, c.created_at,
			p.name AS professor_name, p.email AS professor_email,
			(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS student_count
		FROM courses c
		JOIN professors p ON p.id = c.professor_id`
)

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{repository{db: db}}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	ex := repo.exec(exec)
	q := "INSERT INTO courses (professor_id, name, semester, class_time, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id"
	err := ex.QueryRowxContext(ctx, ex.Rebind(q), c.ProfessorID, c.Name, c.Semester, c.ClassTime, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id int64, exec ...core.DBExecutor) (course.Course, error) {
	ex := repo.exec(exec)
	var c course.Course
	err := ex.GetContext(ctx, &c, ex.Rebind("SELECT "+courseColumns+" FROM courses WHERE id = ?"), id)
	return c, trapNoRowsErr(err, course.ErrNotFound)
}

func (repo *courseRepository) GetCourseDetail(ctx context.Context, id int64, exec ...core.DBExecutor) (course.CourseDetail, error) {
	ex := repo.exec(exec)
	var cd course.CourseDetail
	err := ex.GetContext(ctx, &cd, ex.Rebind(courseDetailSelect+" WHERE c.id = ?"), id)
	return cd, trapNoRowsErr(err, course.ErrNotFound)
}

func (repo *courseRepository) queryDetails(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) ([]course.CourseDetail, error) {
	details := make([]course.CourseDetail, 0)
	q := courseDetailSelect + " WHERE " + where + " ORDER BY c.semester DESC, c.name, c.id"
	if err := ex.SelectContext(ctx, &details, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return details, nil
}

func (repo *courseRepository) QueryCourseDetails(ctx context.Context, professorID int64, exec ...core.DBExecutor) ([]course.CourseDetail, error) {
	if professorID == 0 {
		return repo.queryDetails(ctx, repo.exec(exec), "1 = 1")
	}
	return repo.queryDetails(ctx, repo.exec(exec), "c.professor_id = ?", professorID)
}

func (repo *courseRepository) QueryStudentCourses(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]course.CourseDetail, error) {
	return repo.queryDetails(
		ctx, repo.exec(exec),
		"c.id IN (SELECT e.course_id FROM enrollments e WHERE e.student_id = ?)", studentID,
	)
}

// QueryCourseGroupIDs returns the groups referenced by the course's memberships or assignments.
func (repo *courseRepository) QueryCourseGroupIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error) {
	ex := repo.exec(exec)
	q := `SELECT group_id FROM group_memberships WHERE course_id = ?
		UNION
		SELECT group_id FROM evaluation_assignments WHERE course_id = ?`
	ids := make([]int64, 0)
	if err := ex.SelectContext(ctx, &ids, ex.Rebind(q), courseID, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course groups")
	}
	return ids, nil
}

// QueryMemberGroupIDs returns the groups having at least one member in the course.
func (repo *courseRepository) QueryMemberGroupIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error) {
	ex := repo.exec(exec)
	q := "SELECT DISTINCT group_id FROM group_memberships WHERE course_id = ? ORDER BY group_id"
	ids := make([]int64, 0)
	if err := ex.SelectContext(ctx, &ids, ex.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "querying member groups")
	}
	return ids, nil
}

func (repo *courseRepository) deleteWhere(ctx context.Context, ex core.DBExecutor, table string, id int64) (int64, error) {
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind("DELETE FROM "+table+" WHERE course_id = ?"), id))
	return n, errors.Wrapf(err, "deleting from %s", table)
}

func (repo *courseRepository) DeleteCourseMemberships(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error) {
	return repo.deleteWhere(ctx, repo.exec(exec), "group_memberships", courseID)
}

func (repo *courseRepository) DeleteCourseAssignments(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error) {
	return repo.deleteWhere(ctx, repo.exec(exec), "evaluation_assignments", courseID)
}

func (repo *courseRepository) DeleteCourseEnrollments(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error) {
	return repo.deleteWhere(ctx, repo.exec(exec), "enrollments", courseID)
}

// CountGroupReferences counts the memberships and evaluation assignments still pointing at the group.
func (repo *courseRepository) CountGroupReferences(ctx context.Context, groupID int64, exec ...core.DBExecutor) (int, error) {
	ex := repo.exec(exec)
	q := `SELECT (SELECT COUNT(*) FROM group_memberships WHERE group_id = ?)
		+ (SELECT COUNT(*) FROM evaluation_assignments WHERE group_id = ?)`
	var count int
	err := ex.GetContext(ctx, &count, ex.Rebind(q), groupID, groupID)
	return count, errors.Wrap(err, "counting group references")
}

func (repo *courseRepository) DeleteGroup(ctx context.Context, groupID int64, exec ...core.DBExecutor) (int64, error) {
	ex := repo.exec(exec)
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind("DELETE FROM peer_groups WHERE id = ?"), groupID))
	return n, errors.Wrap(err, "deleting group")
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error) {
	ex := repo.exec(exec)
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind("DELETE FROM courses WHERE id = ?"), courseID))
	return n, errors.Wrap(err, "deleting course")
}

func (repo *courseRepository) IsEnrolled(ctx context.Context, courseID, studentID int64, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	var count int
	q := "SELECT COUNT(*) FROM enrollments WHERE course_id = ? AND student_id = ?"
	if err := ex.GetContext(ctx, &count, ex.Rebind(q), courseID, studentID); err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return count > 0, nil
}

func (repo *courseRepository) Enroll(ctx context.Context, courseID, studentID int64, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	q := `INSERT INTO enrollments (course_id, student_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (course_id, student_id) DO NOTHING`
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind(q), courseID, studentID, at))
	if err != nil {
		return false, errors.Wrap(err, "enrolling student")
	}
	return n > 0, nil
}

func (repo *courseRepository) QueryRoster(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]course.RosterEntry, error) {
	ex := repo.exec(exec)
	q := `SELECT s.id AS student_id, s.name, s.email,
			(SELECT MIN(gm.group_id) FROM group_memberships gm
				WHERE gm.course_id = e.course_id AND gm.student_id = s.id) AS group_id
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = ?
		ORDER BY s.name, s.id`
	entries := make([]course.RosterEntry, 0)
	if err := ex.SelectContext(ctx, &entries, ex.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	return entries, nil
}

func (repo *courseRepository) QueryEnrolledStudentIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error) {
	ex := repo.exec(exec)
	ids := make([]int64, 0)
	q := "SELECT student_id FROM enrollments WHERE course_id = ? ORDER BY student_id"
	if err := ex.SelectContext(ctx, &ids, ex.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "querying enrolled students")
	}
	return ids, nil
}

func (repo *courseRepository) CreateGroup(ctx context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	ex := repo.exec(exec)
	q := "INSERT INTO peer_groups (name, created_at) VALUES (?, ?) RETURNING id"
	if err := ex.QueryRowxContext(ctx, ex.Rebind(q), g.Name, g.CreatedAt).Scan(&g.ID); err != nil {
		return course.Group{}, errors.Wrap(err, "inserting group")
	}
	return g, nil
}

func (repo *courseRepository) GetGroupByID(ctx context.Context, id int64, exec ...core.DBExecutor) (course.Group, error) {
	ex := repo.exec(exec)
	var g course.Group
	err := ex.GetContext(ctx, &g, ex.Rebind("SELECT id, name, created_at FROM peer_groups WHERE id = ?"), id)
	return g, trapNoRowsErr(err, course.ErrGroupNotFound)
}

func (repo *courseRepository) QueryGroupSummaries(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]course.GroupSummary, error) {
	ex := repo.exec(exec)
	q := `SELECT g.id, g.name, g.created_at, COUNT(gm.student_id) AS student_count
		FROM peer_groups g
		JOIN group_memberships gm ON gm.group_id = g.id
		WHERE gm.course_id = ?
		GROUP BY g.id, g.name, g.created_at
		ORDER BY g.name, g.id`
	groups := make([]course.GroupSummary, 0)
	if err := ex.SelectContext(ctx, &groups, ex.Rebind(q), courseID); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	return groups, nil
}

func (repo *courseRepository) AddGroupMember(ctx context.Context, courseID, groupID, studentID int64, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	q := `INSERT INTO group_memberships (course_id, group_id, student_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (course_id, group_id, student_id) DO NOTHING`
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind(q), courseID, groupID, studentID, at))
	if err != nil {
		return false, errors.Wrap(err, "adding group member")
	}
	return n > 0, nil
}

func (repo *courseRepository) QueryGroupMembers(ctx context.Context, courseID, groupID int64, exec ...core.DBExecutor) ([]course.Member, error) {
	ex := repo.exec(exec)
	q := `SELECT s.id AS student_id, s.name, s.email
		FROM group_memberships gm
		JOIN students s ON s.id = gm.student_id
		WHERE gm.course_id = ? AND gm.group_id = ?
		ORDER BY s.name, s.id`
	members := make([]course.Member, 0)
	if err := ex.SelectContext(ctx, &members, ex.Rebind(q), courseID, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	return members, nil
}

func (repo *courseRepository) RemoveGroupMember(ctx context.Context, courseID, groupID, studentID int64, exec ...core.DBExecutor) (bool, error) {
	ex := repo.exec(exec)
	q := "DELETE FROM group_memberships WHERE course_id = ? AND group_id = ? AND student_id = ?"
	n, err := rowsAffected(ex.ExecContext(ctx, ex.Rebind(q), courseID, groupID, studentID))
	if err != nil {
		return false, errors.Wrap(err, "removing group member")
	}
	return n > 0, nil
}
