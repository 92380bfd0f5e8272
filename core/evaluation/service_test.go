package evaluation_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/course"
	"github.com/trezcool/peereval/core/evaluation"
	"github.com/trezcool/peereval/core/roster"
	sqlxrepos "github.com/trezcool/peereval/storage/database/sqlx"
	"github.com/trezcool/peereval/testutil"
)

type fixture struct {
	db       *sqlx.DB
	repo     evaluation.Repository
	courses  course.Repository
	students roster.Repository
	svc      *evaluation.Service

	course       course.Course
	g1, g2, g3   course.Group
	s1, s2, s3   roster.Student
	outsider     roster.Student
	dueTomorrow  evaluation.DateTime
	dueYesterday evaluation.DateTime
}

// setup builds a course with g1 = {s1, s2}, g2 = {s3} and an empty g3; outsider is not enrolled.
func setup(t *testing.T) *fixture {
	db := testutil.PrepareDB(t)
	f := &fixture{
		db:       db,
		repo:     sqlxrepos.NewEvaluationRepository(db),
		courses:  sqlxrepos.NewCourseRepository(db),
		students: sqlxrepos.NewRosterRepository(db),
	}
	f.svc = evaluation.NewService(db, f.repo, f.courses, f.students)

	prof := testutil.CreateProfessor(t, f.students, "Charles Babbage", "babbage@uni.test")
	f.course = testutil.CreateCourse(t, f.courses, prof.ID, "Engines", "Fall 2024")
	f.s1 = testutil.CreateStudent(t, f.students, "Ada Lovelace", "ada@uni.test")
	f.s2 = testutil.CreateStudent(t, f.students, "Alan Turing", "")
	f.s3 = testutil.CreateStudent(t, f.students, "Grace Hopper", "")
	f.outsider = testutil.CreateStudent(t, f.students, "Edsger Dijkstra", "")
	f.g1 = testutil.CreateGroup(t, f.courses, "G1")
	f.g2 = testutil.CreateGroup(t, f.courses, "G2")
	f.g3 = testutil.CreateGroup(t, f.courses, "G3")
	testutil.AddMembers(t, f.courses, f.course.ID, f.g1.ID, f.s1.ID, f.s2.ID)
	testutil.AddMembers(t, f.courses, f.course.ID, f.g2.ID, f.s3.ID)

	f.dueTomorrow = evaluation.DateTime{Time: time.Now().Add(24 * time.Hour).UTC()}
	f.dueYesterday = evaluation.DateTime{Time: time.Now().Add(-24 * time.Hour).UTC()}
	return f
}

// flakyRepository fails every assignment insert for one evaluator.
type flakyRepository struct {
	evaluation.Repository
	failFor int64
}

func (r flakyRepository) CreateAssignment(ctx context.Context, a evaluation.Assignment, exec ...core.DBExecutor) (evaluation.Assignment, error) {
	if a.EvaluatorID == r.failFor {
		return evaluation.Assignment{}, errors.New("disk full")
	}
	return r.Repository.CreateAssignment(ctx, a, exec...)
}

func TestService_CreateAssignments(t *testing.T) {
	ctx := context.Background()

	t.Run("group members evaluate their group", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID: f.course.ID,
			GroupIDs: []int64{f.g1.ID, f.g2.ID, f.g1.ID},
			DueDate:  f.dueTomorrow,
			Name:     "Midterm",
			Points:   10,
		})
		require.NoError(t, err)
		assert.Len(t, res.Created, 3)
		assert.Empty(t, res.Errors)
		assert.Equal(t, "Midterm", res.Created[0].Name.String)
	})

	t.Run("partial batch", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: f.course.ID, GroupIDs: []int64{f.g2.ID}, DueDate: f.dueTomorrow})
		require.NoError(t, err)

		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID: f.course.ID,
			GroupIDs: []int64{f.g1.ID, f.g2.ID, f.g3.ID, 4242},
			DueDate:  f.dueTomorrow,
		})
		require.NoError(t, err)
		assert.Len(t, res.Created, 2)
		assert.ElementsMatch(t, []string{
			"Group 4242 does not exist",
			"Group " + itoa(f.g3.ID) + " has no members in this course",
			"Assignment already exists for student " + itoa(f.s3.ID) + " (Grace Hopper) in group " + itoa(f.g2.ID),
		}, res.Errors)
	})

	t.Run("nothing created rolls everything back", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID:            f.course.ID,
			GroupIDs:            []int64{f.g1.ID},
			EvaluatorStudentIDs: []int64{4242, 4343},
			DueDate:             f.dueTomorrow,
		})
		assert.Equal(t, evaluation.ErrNoAssignmentsCreated, errors.Cause(err))
		assert.Empty(t, res.Created)
		assert.Equal(t, []string{"Student 4242 does not exist", "Student 4343 does not exist"}, res.Errors)

		details, err := f.svc.QueryCourseAssignments(ctx, f.course.ID)
		require.NoError(t, err)
		assert.Empty(t, details)
	})

	t.Run("explicit evaluators are enrolled", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID:            f.course.ID,
			GroupIDs:            []int64{f.g2.ID},
			EvaluatorStudentIDs: []int64{f.outsider.ID, 4242},
			DueDate:             f.dueTomorrow,
		})
		require.NoError(t, err)
		require.Len(t, res.Created, 1)
		assert.Equal(t, f.outsider.ID, res.Created[0].EvaluatorID)
		assert.Equal(t, []string{"Student 4242 does not exist"}, res.Errors)

		enrolled, err := f.courses.IsEnrolled(ctx, f.course.ID, f.outsider.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("everyone", func(t *testing.T) {
		f := setup(t)
		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: f.course.ID, Everyone: true, DueDate: f.dueTomorrow})
		require.NoError(t, err)
		assert.Len(t, res.Created, 6) // 2 groups x 3 enrolled students
		assert.Empty(t, res.Errors)
	})

	t.Run("everyone skips groups without members", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID:            f.course.ID,
			GroupIDs:            []int64{f.g3.ID},
			EvaluatorStudentIDs: []int64{f.outsider.ID},
			DueDate:             f.dueTomorrow,
		})
		require.NoError(t, err)

		res, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: f.course.ID, Everyone: true, DueDate: f.dueTomorrow})
		require.NoError(t, err)
		assert.Len(t, res.Created, 8) // 2 groups x 4 enrolled students
		assert.Empty(t, res.Errors)
		for _, a := range res.Created {
			assert.NotEqual(t, f.g3.ID, a.GroupID)
		}
	})

	t.Run("everyone without groups", func(t *testing.T) {
		f := setup(t)
		other := testutil.CreateCourse(t, f.courses, f.course.ProfessorID, "Looms", "Fall 2024")
		_, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: other.ID, Everyone: true, DueDate: f.dueTomorrow})
		assert.Equal(t, evaluation.ErrNoTargetGroups, errors.Cause(err))
	})

	t.Run("failed insert is an item error", func(t *testing.T) {
		f := setup(t)
		svc := evaluation.NewService(f.db, flakyRepository{Repository: f.repo, failFor: f.s2.ID}, f.courses, f.students)
		res, err := svc.CreateAssignments(ctx, evaluation.NewAssignments{
			CourseID: f.course.ID,
			GroupIDs: []int64{f.g1.ID, f.g2.ID},
			DueDate:  f.dueTomorrow,
		})
		require.NoError(t, err)
		assert.Len(t, res.Created, 2)
		assert.Equal(t, []string{
			"Failed to assign group " + itoa(f.g1.ID) + " to student " + itoa(f.s2.ID) + ": disk full",
		}, res.Errors)

		details, err := f.svc.QueryCourseAssignments(ctx, f.course.ID)
		require.NoError(t, err)
		assert.Len(t, details, 2)
	})

	t.Run("unknown course", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: 4242, GroupIDs: []int64{f.g1.ID}, DueDate: f.dueTomorrow})
		assert.Equal(t, course.ErrNotFound, errors.Cause(err))
	})
}

func TestService_assignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{CourseID: f.course.ID, GroupIDs: []int64{f.g1.ID}, DueDate: f.dueTomorrow})
	require.NoError(t, err)
	late, err := f.svc.CreateAssignments(ctx, evaluation.NewAssignments{
		CourseID:            f.course.ID,
		GroupIDs:            []int64{f.g2.ID},
		EvaluatorStudentIDs: []int64{f.s1.ID},
		DueDate:             f.dueYesterday,
	})
	require.NoError(t, err)

	res := roster.Resolution{Student: f.s1, Outcome: roster.Resolved}
	details, err := f.svc.QueryStudentAssignments(ctx, res)
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, evaluation.StatusOverdue, details[0].Status)
	assert.Equal(t, "G2", details[0].GroupName)
	assert.Equal(t, evaluation.StatusPending, details[1].Status)

	done, err := f.svc.Complete(ctx, late.Created[0].ID)
	require.NoError(t, err)
	assert.True(t, done.CompletedAt.Valid)
	again, err := f.svc.Complete(ctx, late.Created[0].ID)
	require.NoError(t, err)
	assert.True(t, done.CompletedAt.Time.Equal(again.CompletedAt.Time))

	details, err = f.svc.QueryStudentAssignments(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, evaluation.StatusPending, details[0].Status)
	assert.Equal(t, evaluation.StatusCompleted, details[1].Status)

	details, err = f.svc.QueryStudentAssignments(ctx, roster.Resolution{Outcome: roster.Unresolved})
	require.NoError(t, err)
	assert.Empty(t, details)

	require.NoError(t, f.svc.Delete(ctx, late.Created[0].ID))
	assert.Equal(t, evaluation.ErrAssignmentNotFound, f.svc.Delete(ctx, late.Created[0].ID))
	_, err = f.svc.Complete(ctx, late.Created[0].ID)
	assert.Equal(t, evaluation.ErrAssignmentNotFound, err)
}

func TestService_Teammates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	mates, err := f.svc.Teammates(ctx, f.course.ID, f.g1.ID, roster.Resolution{Student: f.s1, Outcome: roster.Resolved})
	require.NoError(t, err)
	assert.Equal(t, f.s1.ID, mates.EvaluatorID)
	assert.Equal(t, []evaluation.Teammate{{ID: f.s2.ID, Name: "Alan Turing"}}, mates.Teammates)

	mates, err = f.svc.Teammates(ctx, f.course.ID, f.g2.ID, roster.Resolution{Student: f.s3, Outcome: roster.Resolved})
	require.NoError(t, err)
	assert.Empty(t, mates.Teammates)

	_, err = f.svc.Teammates(ctx, f.course.ID, f.g1.ID, roster.Resolution{Outcome: roster.Ambiguous})
	assert.Equal(t, roster.ErrAmbiguousStudent, err)
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	score := func(n int) *int { return &n }
	newEval := func(evaluator, teammate int64, overall int) evaluation.NewEvaluation {
		return evaluation.NewEvaluation{
			EvaluatorID:       evaluator,
			TeammateID:        teammate,
			Feedback:          "Great teammate",
			ContributionScore: score(4),
			PlanMgmtScore:     score(3),
			TeamClimateScore:  score(4),
			ConflictResScore:  score(2),
			OverallRating:     score(overall),
		}
	}

	t.Run("unknown teammate leaves nothing behind", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, newEval(f.s1.ID, 4242, 4))
		assert.Equal(t, evaluation.ErrUnknownStudent, errors.Cause(err))

		d, err := f.svc.Dashboard(ctx)
		require.NoError(t, err)
		assert.Zero(t, d.TotalEvaluations)
	})

	t.Run("unknown evaluator", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, newEval(4242, f.s2.ID, 4))
		assert.Equal(t, evaluation.ErrUnknownStudent, errors.Cause(err))
	})

	sub, err := f.svc.Submit(ctx, newEval(f.s1.ID, f.s2.ID, 4))
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)
	assert.Equal(t, sub.ID, sub.Target.EvaluationID)
	assert.Equal(t, f.s2.ID, sub.Target.EvaluateeID)
	_, err = f.svc.Submit(ctx, newEval(f.s3.ID, f.s2.ID, 3))
	require.NoError(t, err)

	d, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.TotalEvaluations)
	assert.Equal(t, 3.5, d.OverallAverageScore)
	assert.Equal(t, evaluation.SubmissionRate{Submitted: 2, Total: 4, Percentage: 50}, d.SubmissionRate)
	require.Len(t, d.StudentScores, 1)
	assert.Equal(t, f.s2.ID, d.StudentScores[0].StudentID)
	assert.Equal(t, 2, d.StudentScores[0].EvaluationCount)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
