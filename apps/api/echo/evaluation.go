package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core/evaluation"
	"github.com/trezcool/peereval/core/roster"
)

type evaluationApi struct {
	svc       *evaluation.Service
	rosterSvc *roster.Service
	validate  *validator.Validate
}

func registerEvaluationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *evaluation.Service,
	rosterSvc *roster.Service,
	validate *validator.Validate,
) {
	api := evaluationApi{
		svc:       svc,
		rosterSvc: rosterSvc,
		validate:  validate,
	}
	prof := professorMiddleware()

	ag := g.Group("", jwt)
	ag.POST("/evaluation-assignments", api.createAssignments, prof)
	ag.GET("/courses/:courseId/evaluation-assignments", api.courseAssignments)
	ag.PATCH("/evaluation-assignments/:assignmentId/complete", api.complete)
	ag.DELETE("/evaluation-assignments/:assignmentId", api.deleteAssignment, prof)

	ag.GET("/teammates", api.teammates)
	ag.POST("/submit-evaluation", api.submit)
	ag.GET("/analytics/dashboard", api.dashboard, prof)
}

// Handlers

func (api *evaluationApi) createAssignments(ctx echo.Context) error {
	var data evaluation.NewAssignments
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignments")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	result, err := api.svc.CreateAssignments(requestContext(ctx), data)
	if err != nil {
		if errors.Cause(err) == evaluation.ErrNoAssignmentsCreated {
			return ctx.JSON(http.StatusBadRequest, BatchResponse{
				Message: "Failed to create any assignments",
				Errors:  result.Errors,
			})
		}
		return errors.Wrap(err, "creating assignments")
	}
	return ctx.JSON(http.StatusCreated, BatchResponse{
		Message:     fmt.Sprintf("Successfully created %d assignment(s)", len(result.Created)),
		Assignments: result.Created,
		Errors:      result.Errors,
	})
}

func (api *evaluationApi) courseAssignments(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	assignments, err := api.svc.QueryCourseAssignments(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "querying course assignments")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"assignments": assignments})
}

func (api *evaluationApi) complete(ctx echo.Context) error {
	id, err := paramID(ctx, "assignmentId", "assignment")
	if err != nil {
		return err
	}
	a, err := api.svc.Complete(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "completing assignment")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Assignment marked as completed", "assignment": a})
}

func (api *evaluationApi) deleteAssignment(ctx echo.Context) error {
	id, err := paramID(ctx, "assignmentId", "assignment")
	if err != nil {
		return err
	}
	if err = api.svc.Delete(requestContext(ctx), id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Assignment deleted successfully"})
}

func (api *evaluationApi) teammates(ctx echo.Context) error {
	courseID, okC := queryID(ctx, "course_id")
	groupID, okG := queryID(ctx, "group_id")
	email := strings.TrimSpace(ctx.QueryParam("student_email"))
	if !okC || !okG || email == "" {
		return errTeammatesRequired
	}

	rctx := requestContext(ctx)
	res, err := api.rosterSvc.ResolveStudentByEmail(rctx, email)
	if err != nil {
		return errors.Wrap(err, "resolving student")
	}
	mates, err := api.svc.Teammates(rctx, courseID, groupID, res)
	if err != nil {
		return errors.Wrap(err, "querying teammates")
	}
	return ctx.JSON(http.StatusOK, mates)
}

func (api *evaluationApi) submit(ctx echo.Context) error {
	var data evaluation.NewEvaluation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvaluation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Submit(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting evaluation")
	}
	return ctx.JSON(http.StatusOK, SubmitResponse{
		Message:      "Evaluation submitted successfully",
		EvaluationID: sub.ID,
	})
}

func (api *evaluationApi) dashboard(ctx echo.Context) error {
	d, err := api.svc.Dashboard(requestContext(ctx))
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

type BatchResponse struct {
	Message     string                  `json:"message"`
	Assignments []evaluation.Assignment `json:"assignments,omitempty"`
	Errors      []string                `json:"errors"`
}

type SubmitResponse struct {
	Message      string `json:"message"`
	EvaluationID int64  `json:"evaluation_id"`
}
