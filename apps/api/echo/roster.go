package echoapi

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core/course"
	"github.com/trezcool/peereval/core/evaluation"
	"github.com/trezcool/peereval/core/roster"
)

const maxReportedErrors = 10

type rosterApi struct {
	svc           *roster.Service
	courseSvc     *course.Service
	evaluationSvc *evaluation.Service
}

func registerRosterAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *roster.Service,
	courseSvc *course.Service,
	evaluationSvc *evaluation.Service,
) {
	api := rosterApi{
		svc:           svc,
		courseSvc:     courseSvc,
		evaluationSvc: evaluationSvc,
	}

	ag := g.Group("", jwt)
	ag.GET("/students", api.queryStudents)
	ag.POST("/upload-students", api.uploadStudents, professorMiddleware())
	ag.GET("/professors", api.queryProfessors)
	ag.GET("/students/:studentEmail/courses", api.studentCourses)
	ag.GET("/students/:studentEmail/evaluation-assignments", api.studentAssignments)
}

// Handlers

func (api *rosterApi) queryStudents(ctx echo.Context) error {
	filter := bindStudentFilter(ctx)
	students, total, err := api.svc.QueryStudents(requestContext(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"students":   students,
		"pagination": newPagination(filter.Pagination, total),
	})
}

func (api *rosterApi) uploadStudents(ctx echo.Context) error {
	file, err := formCSV(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	report, err := api.svc.ImportStudents(requestContext(ctx), file)
	if err != nil {
		return errors.Wrap(err, "importing students")
	}
	return ctx.JSON(http.StatusOK, ImportResponse{
		Message:        "CSV processing completed",
		SuccessCount:   report.SuccessCount,
		DuplicateCount: report.DuplicateCount,
		ErrorCount:     report.ErrorCount,
		Errors:         firstErrors(report.Errors),
	})
}

func (api *rosterApi) queryProfessors(ctx echo.Context) error {
	profs, err := api.svc.QueryProfessors(requestContext(ctx))
	if err != nil {
		return errors.Wrap(err, "querying professors")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"professors": profs})
}

func (api *rosterApi) studentCourses(ctx echo.Context) error {
	res, err := api.svc.ResolveStudentByEmail(requestContext(ctx), ctx.Param("studentEmail"))
	if err != nil {
		return errors.Wrap(err, "resolving student")
	}
	courses, err := api.courseSvc.StudentCourses(requestContext(ctx), res)
	if err != nil {
		return errors.Wrap(err, "querying student courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"student": res.Student, "courses": courses})
}

func (api *rosterApi) studentAssignments(ctx echo.Context) error {
	res, err := api.svc.ResolveStudentByEmail(requestContext(ctx), ctx.Param("studentEmail"))
	if err != nil {
		return errors.Wrap(err, "resolving student")
	}
	assignments, err := api.evaluationSvc.QueryStudentAssignments(requestContext(ctx), res)
	if err != nil {
		return errors.Wrap(err, "querying student assignments")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"assignments": assignments})
}

// formCSV opens the uploaded `csv_file` (or `csvFile`) form file.
func formCSV(ctx echo.Context) (multipart.File, error) {
	fh, err := ctx.FormFile("csv_file")
	if err != nil {
		if fh, err = ctx.FormFile("csvFile"); err != nil {
			return nil, errNoCSVFile
		}
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return nil, errNotCSV
	}
	file, err := fh.Open()
	return file, errors.Wrap(err, "opening uploaded file")
}

func firstErrors(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	if len(errs) > maxReportedErrors {
		return errs[:maxReportedErrors]
	}
	return errs
}

type ImportResponse struct {
	Message        string   `json:"message"`
	SuccessCount   int      `json:"success_count"`
	DuplicateCount int      `json:"duplicate_count"`
	CreatedCount   *int     `json:"created_count,omitempty"`
	ErrorCount     int      `json:"error_count"`
	Errors         []string `json:"errors"`
}
