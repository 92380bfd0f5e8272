package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core/course"
)

type courseApi struct {
	auth     *authenticator
	svc      *course.Service
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	svc *course.Service,
	validate *validator.Validate,
) {
	api := courseApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}
	prof := professorMiddleware()

	ag := g.Group("", jwt)
	ag.GET("/professors/:professorId/courses", api.queryByProfessor)

	cg := ag.Group("/courses")
	cg.GET("", api.query)
	cg.POST("", api.create, prof)

	// detail endpoints
	cg.GET("/:courseId", api.retrieve)
	cg.DELETE("/:courseId", api.destroy, prof)
	cg.GET("/:courseId/roster", api.roster)
	cg.POST("/:courseId/upload-roster", api.uploadRoster, prof)

	// groups
	cg.GET("/:courseId/groups", api.queryGroups)
	cg.POST("/:courseId/groups", api.createGroup, prof)
	cg.GET("/:courseId/groups/:groupId/students", api.members)
	cg.POST("/:courseId/groups/:groupId/students", api.addMembers, prof)
	cg.DELETE("/:courseId/groups/:groupId/students/:studentId", api.removeMember, prof)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	courses, err := api.svc.QueryAll(requestContext(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": courses})
}

func (api *courseApi) queryByProfessor(ctx echo.Context) error {
	courses, err := api.svc.QueryByProfessor(requestContext(ctx), ctx.Param("professorId"))
	if err != nil {
		return errors.Wrap(err, "querying professor courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": courses})
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.auth.contextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	c, err := api.svc.Create(requestContext(ctx), acc, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Course created successfully", "course": c})
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	c, err := api.svc.Get(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"course": c})
}

func (api *courseApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	report, err := api.svc.Delete(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, DeleteCourseResponse{Message: "Course deleted successfully", DeleteReport: report})
}

func (api *courseApi) roster(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	entries, err := api.svc.Roster(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "querying roster")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"roster": entries})
}

func (api *courseApi) uploadRoster(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	file, err := formCSV(ctx)
	if err != nil {
		return err
	}
	defer file.Close()

	report, err := api.svc.ImportRoster(requestContext(ctx), id, file)
	if err != nil {
		return errors.Wrap(err, "importing roster")
	}
	return ctx.JSON(http.StatusOK, ImportResponse{
		Message:        "CSV processing completed",
		SuccessCount:   report.SuccessCount,
		DuplicateCount: report.DuplicateCount,
		CreatedCount:   &report.CreatedCount,
		ErrorCount:     report.ErrorCount,
		Errors:         firstErrors(report.Errors),
	})
}

func (api *courseApi) queryGroups(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	groups, err := api.svc.QueryGroups(requestContext(ctx), id)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"groups": groups})
}

func (api *courseApi) createGroup(ctx echo.Context) error {
	id, err := paramID(ctx, "courseId", "course")
	if err != nil {
		return err
	}
	var data course.NewGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.CreateGroup(requestContext(ctx), id, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Group created successfully", "group": g})
}

func (api *courseApi) groupParams(ctx echo.Context) (courseID, groupID int64, err error) {
	if courseID, err = paramID(ctx, "courseId", "course"); err != nil {
		return 0, 0, err
	}
	groupID, err = paramID(ctx, "groupId", "group")
	return courseID, groupID, err
}

func (api *courseApi) members(ctx echo.Context) error {
	courseID, groupID, err := api.groupParams(ctx)
	if err != nil {
		return err
	}
	members, err := api.svc.Members(requestContext(ctx), courseID, groupID)
	if err != nil {
		return errors.Wrap(err, "querying group members")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"students": members})
}

func (api *courseApi) addMembers(ctx echo.Context) error {
	courseID, groupID, err := api.groupParams(ctx)
	if err != nil {
		return err
	}
	var data course.AddMembers
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddMembers")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	report, err := api.svc.AddMembers(requestContext(ctx), courseID, groupID, data)
	if err != nil {
		return errors.Wrap(err, "adding group members")
	}
	return ctx.JSON(http.StatusOK, MembershipResponse{Message: "Students added to group", MembershipReport: report})
}

func (api *courseApi) removeMember(ctx echo.Context) error {
	courseID, groupID, err := api.groupParams(ctx)
	if err != nil {
		return err
	}
	studentID, err := paramID(ctx, "studentId", "student")
	if err != nil {
		return err
	}
	if err = api.svc.RemoveMember(requestContext(ctx), courseID, groupID, studentID); err != nil {
		return errors.Wrap(err, "removing group member")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Student removed from group successfully"})
}

type DeleteCourseResponse struct {
	Message string `json:"message"`
	course.DeleteReport
}

type MembershipResponse struct {
	Message string `json:"message"`
	course.MembershipReport
}
