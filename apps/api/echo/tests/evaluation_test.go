package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/peereval/apps/api/echo"
	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/course"
	"github.com/trezcool/peereval/core/evaluation"
	"github.com/trezcool/peereval/core/roster"
	"github.com/trezcool/peereval/testutil"
)

type evalFixture struct {
	profToken    string
	studentToken string
	course       course.Course
	g1, g2, g3   course.Group
	s1, s2, s3   roster.Student
	outsider     roster.Student
}

// newEvalFixture sets up one course with groups G1 (s1, s2), G2 (s3) and G3 (no members).
// s1 carries the email of the "ada" student account.
func newEvalFixture(t *testing.T) evalFixture {
	prof := testutil.CreateAccount(t, accountRepo, "babbage", "babbage@uni.test", testPwd, account.RoleProfessor)
	student := testutil.CreateAccount(t, accountRepo, "ada", "ada@uni.test", testPwd, account.RoleStudent)
	profRec := testutil.CreateProfessor(t, rosterRepo, "Charles Babbage", "babbage@uni.test")

	f := evalFixture{
		profToken:    getToken(t, prof),
		studentToken: getToken(t, student),
		course:       testutil.CreateCourse(t, courseRepo, profRec.ID, "Engines", "Fall 2024"),
		g1:           testutil.CreateGroup(t, courseRepo, "G1"),
		g2:           testutil.CreateGroup(t, courseRepo, "G2"),
		g3:           testutil.CreateGroup(t, courseRepo, "G3"),
		s1:           testutil.CreateStudent(t, rosterRepo, "Ada Lovelace", "ada@uni.test"),
		s2:           testutil.CreateStudent(t, rosterRepo, "Alan Turing", ""),
		s3:           testutil.CreateStudent(t, rosterRepo, "Grace Hopper", ""),
		outsider:     testutil.CreateStudent(t, rosterRepo, "Edsger Dijkstra", ""),
	}
	testutil.AddMembers(t, courseRepo, f.course.ID, f.g1.ID, f.s1.ID, f.s2.ID)
	testutil.AddMembers(t, courseRepo, f.course.ID, f.g2.ID, f.s3.ID)
	return f
}

func Test_evaluationApi_createAssignments(t *testing.T) {
	app := setup(t)
	f := newEvalFixture(t)
	ctx := context.Background()

	post := func(body string) (int, BatchResponse) {
		req, rec := newAuthRequest(http.MethodPost, "/api/evaluation-assignments", f.profToken, []byte(body))
		app.ServeHTTP(rec, req)
		var resp BatchResponse
		unmarshal(t, rec, &resp)
		return rec.Code, resp
	}
	partial := fmt.Sprintf(
		`{"course_id":%d,"group_ids":[%d,%d,999],"due_date":"2030-01-01T17:00","assignment_name":"Sprint 1","points":10}`,
		f.course.ID, f.g1.ID, f.g3.ID,
	)
	groupErrs := []string{
		fmt.Sprintf("Group %d has no members in this course", f.g3.ID),
		"Group 999 does not exist",
	}

	runHTTPTests(t, app, []httpTest{
		{
			name: "professor only", method: http.MethodPost, path: "/api/evaluation-assignments", token: f.studentToken,
			body: []byte(partial), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "no due date", method: http.MethodPost, path: "/api/evaluation-assignments", token: f.profToken,
			body: []byte(fmt.Sprintf(`{"course_id":%d,"group_ids":[%d]}`, f.course.ID, f.g1.ID)), wantCode: http.StatusBadRequest,
		},
		{
			name: "no groups", method: http.MethodPost, path: "/api/evaluation-assignments", token: f.profToken,
			body: []byte(fmt.Sprintf(`{"course_id":%d,"due_date":"2030-01-01"}`, f.course.ID)), wantCode: http.StatusBadRequest,
		},
		{
			name: "bad date", method: http.MethodPost, path: "/api/evaluation-assignments", token: f.profToken,
			body: []byte(fmt.Sprintf(`{"course_id":%d,"group_ids":[%d],"due_date":"tomorrow"}`, f.course.ID, f.g1.ID)), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown course", method: http.MethodPost, path: "/api/evaluation-assignments", token: f.profToken,
			body: []byte(fmt.Sprintf(`{"course_id":42,"group_ids":[%d],"due_date":"2030-01-01"}`, f.g1.ID)), wantCode: http.StatusNotFound,
		},
	})

	t.Run("partial batch", func(t *testing.T) {
		code, resp := post(partial)
		require.Equal(t, http.StatusCreated, code)
		assert.Equal(t, "Successfully created 2 assignment(s)", resp.Message)
		require.Len(t, resp.Assignments, 2)
		assert.ElementsMatch(t, groupErrs, resp.Errors)

		evaluators := []int64{resp.Assignments[0].EvaluatorID, resp.Assignments[1].EvaluatorID}
		assert.ElementsMatch(t, []int64{f.s1.ID, f.s2.ID}, evaluators)
		for _, a := range resp.Assignments {
			assert.Equal(t, f.g1.ID, a.GroupID)
			assert.Equal(t, "Sprint 1", a.Name.String)
			assert.Equal(t, 10, a.Points)
			assert.Equal(t, "2030-01-01T17:00:00Z", a.DueDate.UTC().Format("2006-01-02T15:04:05Z07:00"))
		}
	})

	t.Run("total failure", func(t *testing.T) {
		code, resp := post(partial)
		require.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "Failed to create any assignments", resp.Message)
		assert.Empty(t, resp.Assignments)
		assert.Len(t, resp.Errors, 4)
		assert.Subset(t, resp.Errors, groupErrs)

		details, err := evaluationRepo.QueryCourseAssignments(ctx, f.course.ID)
		require.NoError(t, err)
		assert.Len(t, details, 2)
	})

	t.Run("explicit evaluators are auto-enrolled", func(t *testing.T) {
		code, resp := post(fmt.Sprintf(
			`{"course_id":%d,"group_ids":[%d],"evaluator_student_ids":[%d,424242],"due_date":"2030-02-01"}`,
			f.course.ID, f.g2.ID, f.outsider.ID,
		))
		require.Equal(t, http.StatusCreated, code)
		require.Len(t, resp.Assignments, 1)
		assert.Equal(t, f.outsider.ID, resp.Assignments[0].EvaluatorID)
		assert.Equal(t, []string{"Student 424242 does not exist"}, resp.Errors)

		enrolled, err := courseRepo.IsEnrolled(ctx, f.course.ID, f.outsider.ID)
		require.NoError(t, err)
		assert.True(t, enrolled)
	})

	t.Run("everyone", func(t *testing.T) {
		code, resp := post(fmt.Sprintf(`{"course_id":%d,"everyone":true,"due_date":"2030-03-01"}`, f.course.ID))
		require.Equal(t, http.StatusCreated, code, resp.Message)
		// 4 enrolled students x 2 groups with members, minus the 3 pairs assigned above
		assert.Len(t, resp.Assignments, 5)
		assert.Len(t, resp.Errors, 3)
	})
}

func Test_evaluationApi_assignmentLifecycle(t *testing.T) {
	app := setup(t)
	f := newEvalFixture(t)

	req, rec := newAuthRequest(http.MethodPost, "/api/evaluation-assignments", f.profToken, []byte(fmt.Sprintf(
		`{"course_id":%d,"group_ids":[%d],"due_date":"2030-01-01"}`, f.course.ID, f.g1.ID,
	)))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var batch BatchResponse
	unmarshal(t, rec, &batch)
	require.Len(t, batch.Assignments, 2)
	first, second := batch.Assignments[0], batch.Assignments[1]

	courseAssignments := func(t *testing.T) []evaluation.AssignmentDetail {
		req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/api/courses/%d/evaluation-assignments", f.course.ID), f.profToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Assignments []evaluation.AssignmentDetail `json:"assignments"`
		}
		unmarshal(t, rec, &resp)
		return resp.Assignments
	}

	t.Run("course assignments", func(t *testing.T) {
		details := courseAssignments(t)
		require.Len(t, details, 2)
		for _, d := range details {
			assert.Equal(t, evaluation.StatusPending, d.Status)
			assert.Equal(t, "G1", d.GroupName)
			assert.Equal(t, "Engines", d.CourseName)
		}
	})

	t.Run("complete", func(t *testing.T) {
		path := fmt.Sprintf("/api/evaluation-assignments/%d/complete", first.ID)
		req, rec := newAuthRequest(http.MethodPatch, path, f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Message    string                `json:"message"`
			Assignment evaluation.Assignment `json:"assignment"`
		}
		unmarshal(t, rec, &resp)
		assert.Equal(t, "Assignment marked as completed", resp.Message)
		assert.True(t, resp.Assignment.CompletedAt.Valid)

		for _, d := range courseAssignments(t) {
			if d.ID == first.ID {
				assert.Equal(t, evaluation.StatusCompleted, d.Status)
			}
		}
	})

	t.Run("student assignments", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/students/ADA@uni.test/evaluation-assignments", f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Assignments []evaluation.AssignmentDetail `json:"assignments"`
		}
		unmarshal(t, rec, &resp)
		require.Len(t, resp.Assignments, 1)
		assert.Equal(t, f.s1.ID, resp.Assignments[0].EvaluatorID)

		req, rec = newAuthRequest(http.MethodGet, "/api/students/nobody@uni.test/evaluation-assignments", f.studentToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"assignments":[]}`, rec.Body.String())
	})

	runHTTPTests(t, app, []httpTest{
		{
			name: "complete: unknown", method: http.MethodPatch, path: "/api/evaluation-assignments/424242/complete", token: f.profToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "Assignment not found"}),
		},
		{
			name: "delete: professor only", method: http.MethodDelete, path: fmt.Sprintf("/api/evaluation-assignments/%d", second.ID), token: f.studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "delete", method: http.MethodDelete, path: fmt.Sprintf("/api/evaluation-assignments/%d", second.ID), token: f.profToken,
			wantCode: http.StatusOK, wantData: marchallObj(t, httpErr{Message: "Assignment deleted successfully"}),
		},
		{
			name: "delete: unknown", method: http.MethodDelete, path: fmt.Sprintf("/api/evaluation-assignments/%d", second.ID), token: f.profToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "Assignment not found"}),
		},
		{
			name: "course assignments: unknown course", path: "/api/courses/424242/evaluation-assignments", token: f.profToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Message: "Course not found"}),
		},
	})
}

func Test_evaluationApi_teammates(t *testing.T) {
	app := setup(t)
	f := newEvalFixture(t)

	path := func(courseID, groupID interface{}, email string) string {
		return fmt.Sprintf("/api/teammates?course_id=%v&group_id=%v&student_email=%s", courseID, groupID, email)
	}
	required := marchallObj(t, httpErr{Message: "course_id, group_id, and student_email are required"})

	runHTTPTests(t, app, []httpTest{
		{name: "no params", path: "/api/teammates", token: f.studentToken, wantCode: http.StatusBadRequest, wantData: required},
		{name: "no email", path: path(f.course.ID, f.g1.ID, ""), token: f.studentToken, wantCode: http.StatusBadRequest, wantData: required},
		{name: "bad course id", path: path("lol", f.g1.ID, "ada@uni.test"), token: f.studentToken, wantCode: http.StatusBadRequest, wantData: required},
		{name: "unknown student", path: path(f.course.ID, f.g1.ID, "nobody@uni.test"), token: f.studentToken, wantCode: http.StatusNotFound},
		{
			name: "teammates", path: path(f.course.ID, f.g1.ID, "ada@uni.test"), token: f.studentToken, wantCode: http.StatusOK,
			wantData: marchallObj(t, evaluation.Teammates{
				Teammates:   []evaluation.Teammate{{ID: f.s2.ID, Name: f.s2.Name}},
				EvaluatorID: f.s1.ID,
			}),
		},
		{
			name: "other group", path: path(f.course.ID, f.g2.ID, "ada@uni.test"), token: f.studentToken, wantCode: http.StatusOK,
			wantData: marchallObj(t, evaluation.Teammates{Teammates: []evaluation.Teammate{{ID: f.s3.ID, Name: f.s3.Name}}, EvaluatorID: f.s1.ID}),
		},
	})

	// the lookup linked the account to its record
	st, err := rosterRepo.GetStudentByID(context.Background(), f.s1.ID)
	require.NoError(t, err)
	assert.True(t, st.AccountID.Valid)
}

func Test_evaluationApi_submit(t *testing.T) {
	app := setup(t)
	f := newEvalFixture(t)

	submit := func(evaluatorID, teammateID int64, score int) []byte {
		return []byte(fmt.Sprintf(
			`{"evaluator_id":%d,"teammate_id":%d,"contribution_score":%d,"plan_mgmt_score":3,"team_climate_score":2,"conflict_res_score":1,"overall_rating":4,"feedback":"Solid work"}`,
			evaluatorID, teammateID, score,
		))
	}
	notFound := marchallObj(t, httpErr{Message: "Evaluator or teammate not found"})

	runHTTPTests(t, app, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/submit-evaluation", body: submit(f.s1.ID, f.s2.ID, 0), wantCode: http.StatusUnauthorized},
		{name: "score out of range", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: submit(f.s1.ID, f.s2.ID, 5), wantCode: http.StatusBadRequest},
		{name: "negative score", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: submit(f.s1.ID, f.s2.ID, -1), wantCode: http.StatusBadRequest},
		{name: "missing scores", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: []byte(fmt.Sprintf(`{"evaluator_id":%d,"teammate_id":%d}`, f.s1.ID, f.s2.ID)), wantCode: http.StatusBadRequest},
		{name: "self evaluation", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: submit(f.s1.ID, f.s1.ID, 2), wantCode: http.StatusBadRequest},
		{name: "unknown evaluator", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: submit(424242, f.s2.ID, 2), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "unknown teammate", method: http.MethodPost, path: "/api/submit-evaluation", token: f.studentToken, body: submit(f.s1.ID, 424242, 2), wantCode: http.StatusNotFound, wantData: notFound},
	})

	// nothing was stored by the failed submissions
	dashboard := func(t *testing.T) evaluation.Dashboard {
		req, rec := newAuthRequest(http.MethodGet, "/api/analytics/dashboard", f.profToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d evaluation.Dashboard
		unmarshal(t, rec, &d)
		return d
	}
	assert.Equal(t, 0, dashboard(t).TotalEvaluations)

	req, rec := newAuthRequest(http.MethodPost, "/api/submit-evaluation", f.studentToken, submit(f.s1.ID, f.s2.ID, 4))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SubmitResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, "Evaluation submitted successfully", resp.Message)
	assert.NotZero(t, resp.EvaluationID)

	d := dashboard(t)
	assert.Equal(t, 1, d.TotalEvaluations)
	assert.Equal(t, 4.0, d.OverallAverageScore)
	assert.Equal(t, 4, d.TotalStudents)
	assert.Equal(t, 1, d.SubmissionRate.Submitted)
	assert.Equal(t, 25.0, d.SubmissionRate.Percentage)
	require.Len(t, d.StudentScores, 1)
	assert.Equal(t, f.s2.ID, d.StudentScores[0].StudentID)

	runHTTPTests(t, app, []httpTest{
		{name: "dashboard: professor only", path: "/api/analytics/dashboard", token: f.studentToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
	})
}
