package course

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/roster"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound         = core.NewNotFoundError("Course not found")
	ErrGroupNotFound    = core.NewNotFoundError("Group not found")
	ErrMemberNotFound   = core.NewNotFoundError("Student not found in this group")
	ErrStudentsRequired = core.NewValidationError(errors.New("student_ids array is required"))
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourseByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Course, error)
		GetCourseDetail(ctx context.Context, id int64, exec ...core.DBExecutor) (CourseDetail, error)
		// QueryCourseDetails returns every course, or those of one professor when professorID is non-zero.
		QueryCourseDetails(ctx context.Context, professorID int64, exec ...core.DBExecutor) ([]CourseDetail, error)
		QueryStudentCourses(ctx context.Context, studentID int64, exec ...core.DBExecutor) ([]CourseDetail, error)

		// cascade steps
		QueryCourseGroupIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error)
		QueryMemberGroupIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error)
		DeleteCourseMemberships(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error)
		DeleteCourseAssignments(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error)
		CountGroupReferences(ctx context.Context, groupID int64, exec ...core.DBExecutor) (int, error)
		DeleteGroup(ctx context.Context, groupID int64, exec ...core.DBExecutor) (int64, error)
		DeleteCourseEnrollments(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error)
		DeleteCourse(ctx context.Context, courseID int64, exec ...core.DBExecutor) (int64, error)

		// enrollments
		IsEnrolled(ctx context.Context, courseID, studentID int64, exec ...core.DBExecutor) (bool, error)
		// Enroll reports false when the student was already enrolled.
		Enroll(ctx context.Context, courseID, studentID int64, at time.Time, exec ...core.DBExecutor) (bool, error)
		QueryRoster(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]RosterEntry, error)
		QueryEnrolledStudentIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error)

		// groups
		CreateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		GetGroupByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Group, error)
		QueryGroupSummaries(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]GroupSummary, error)
		// AddGroupMember reports false when the membership already existed.
		AddGroupMember(ctx context.Context, courseID, groupID, studentID int64, at time.Time, exec ...core.DBExecutor) (bool, error)
		QueryGroupMembers(ctx context.Context, courseID, groupID int64, exec ...core.DBExecutor) ([]Member, error)
		// RemoveGroupMember reports false when there was no such membership.
		RemoveGroupMember(ctx context.Context, courseID, groupID, studentID int64, exec ...core.DBExecutor) (bool, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		students roster.Repository
		accounts account.Repository
		resolver *roster.Resolver
	}
)

func NewService(
	db core.DB,
	repo Repository,
	students roster.Repository,
	accounts account.Repository,
	resolver *roster.Resolver,
) *Service {
	return &Service{db: db, repo: repo, students: students, accounts: accounts, resolver: resolver}
}

// Create creates a course owned by the professor record of `acc`, creating that record if needed.
func (svc *Service) Create(ctx context.Context, acc account.Account, nc NewCourse) (CourseDetail, error) {
	var detail CourseDetail
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		prof, _, err := svc.resolver.FindOrCreateProfessor(ctx, acc, nc.ProfessorID, tx)
		if err != nil {
			return errors.Wrap(err, "finding or creating professor")
		}
		c, err := svc.repo.CreateCourse(ctx, Course{
			ProfessorID: prof.ID,
			Name:        nc.Name,
			Semester:    nc.Semester,
			ClassTime:   null.NewString(nc.ClassTime, nc.ClassTime != ""),
			CreatedAt:   NowFunc().UTC(),
		}, tx)
		if err != nil {
			return errors.Wrap(err, "inserting course")
		}
		detail = CourseDetail{Course: c, ProfessorName: prof.Name, ProfessorEmail: prof.Email}
		return nil
	})
	return detail, err
}

func (svc *Service) Get(ctx context.Context, id int64) (CourseDetail, error) {
	return svc.repo.GetCourseDetail(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]CourseDetail, error) {
	return svc.repo.QueryCourseDetails(ctx, 0)
}

// QueryByProfessor lists the courses of the professor designated by `ident`:
// a professor id, an account username or email, or a professor email or name.
// An unknown professor has no courses.
func (svc *Service) QueryByProfessor(ctx context.Context, ident string) ([]CourseDetail, error) {
	ident = core.CleanString(ident)
	if ident == "" {
		return []CourseDetail{}, nil
	}

	if id, err := strconv.ParseInt(ident, 10, 64); err == nil {
		if _, err = svc.students.GetProfessorByID(ctx, id); err != nil {
			if errors.Cause(err) == roster.ErrProfessorMissing {
				return []CourseDetail{}, nil
			}
			return nil, errors.Wrap(err, "finding professor by id")
		}
		return svc.repo.QueryCourseDetails(ctx, id)
	}

	email, name := "", ident
	if strings.Contains(ident, "@") {
		email = ident
	}
	acc, err := svc.accounts.GetAccountByUsernameOrEmail(ctx, core.CleanString(ident, true /* lower */))
	switch {
	case err == nil:
		email, name = acc.Email, acc.FullName()
	case errors.Cause(err) != account.ErrNotFound:
		return nil, errors.Wrap(err, "finding account")
	}

	prof, outcome, err := svc.resolver.FindProfessor(ctx, email, name)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case roster.Resolved:
	case roster.Ambiguous:
		return nil, roster.ErrAmbiguousProf
	default:
		return []CourseDetail{}, nil
	}
	return svc.repo.QueryCourseDetails(ctx, prof.ID)
}

// Delete removes a course and everything existing only because of it, in one transaction:
// memberships of the course, its evaluation assignments, groups nothing else refers to,
// enrollments, then the course itself. Groups still used by other courses, through memberships
// or assignments, are kept.
func (svc *Service) Delete(ctx context.Context, id int64) (DeleteReport, error) {
	report := DeleteReport{CourseID: id}
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetCourseByID(ctx, id, tx); err != nil {
			return err
		}

		groupIDs, err := svc.repo.QueryCourseGroupIDs(ctx, id, tx)
		if err != nil {
			return errors.Wrap(err, "collecting groups")
		}

		if report.MembershipsDeleted, err = svc.repo.DeleteCourseMemberships(ctx, id, tx); err != nil {
			return errors.Wrap(err, "deleting memberships")
		}
		if report.AssignmentsDeleted, err = svc.repo.DeleteCourseAssignments(ctx, id, tx); err != nil {
			return errors.Wrap(err, "deleting evaluation assignments")
		}

		for _, gid := range groupIDs {
			count, err := svc.repo.CountGroupReferences(ctx, gid, tx)
			if err != nil {
				return errors.Wrapf(err, "counting references to group %d", gid)
			}
			if count > 0 {
				report.SharedGroupsRetained++
				continue
			}
			n, err := svc.repo.DeleteGroup(ctx, gid, tx)
			if err != nil {
				return errors.Wrapf(err, "deleting orphan group %d", gid)
			}
			report.OrphanGroupsDeleted += n
		}

		if report.EnrollmentsDeleted, err = svc.repo.DeleteCourseEnrollments(ctx, id, tx); err != nil {
			return errors.Wrap(err, "deleting enrollments")
		}
		if report.CoursesDeleted, err = svc.repo.DeleteCourse(ctx, id, tx); err != nil {
			return errors.Wrap(err, "deleting course")
		}
		return nil
	})
	if err != nil {
		return DeleteReport{}, err
	}
	return report, nil
}

func (svc *Service) Roster(ctx context.Context, courseID int64) ([]RosterEntry, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryRoster(ctx, courseID)
}

// ImportRoster enrolls every CSV name in the course, creating unknown students on the way.
func (svc *Service) ImportRoster(ctx context.Context, courseID int64, r io.Reader) (RosterReport, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return RosterReport{}, err
	}
	rows, err := roster.ParseNames(r)
	if err != nil {
		return RosterReport{}, err
	}

	var report RosterReport
	addErr := func(msg string) {
		report.ErrorCount++
		report.Errors = append(report.Errors, msg)
	}
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		for i, row := range rows {
			if row.Name == "" {
				addErr(fmt.Sprintf("Row %d: missing student name", row.Line))
				continue
			}
			var created, enrolled bool
			spErr := core.WithSavepoint(ctx, tx, core.SavepointName("roster_row", i), func() error {
				now := NowFunc().UTC()
				st, err := svc.students.GetStudentByName(ctx, row.Name, tx)
				if errors.Cause(err) == roster.ErrStudentNotFound {
					st, err = svc.students.CreateStudent(ctx, roster.Student{Name: row.Name, CreatedAt: now}, tx)
					created = err == nil
				}
				if err != nil {
					return err
				}
				enrolled, err = svc.repo.Enroll(ctx, courseID, st.ID, now, tx)
				return err
			})
			switch {
			case spErr != nil:
				addErr(fmt.Sprintf("Row %d (%s): %v", row.Line, row.Name, errors.Cause(spErr)))
			case !enrolled:
				report.DuplicateCount++
			default:
				report.SuccessCount++
				if created {
					report.CreatedCount++
				}
			}
		}
		return nil
	})
	if err != nil {
		return RosterReport{}, errors.Wrap(err, "importing roster")
	}
	return report, nil
}

func (svc *Service) CreateGroup(ctx context.Context, courseID int64, ng NewGroup) (Group, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Group{}, err
	}
	return svc.repo.CreateGroup(ctx, Group{Name: ng.Name, CreatedAt: NowFunc().UTC()})
}

// QueryGroups returns every group, with its member count within the course.
func (svc *Service) QueryGroups(ctx context.Context, courseID int64) ([]GroupSummary, error) {
	return svc.repo.QueryGroupSummaries(ctx, courseID)
}

// AddMembers adds enrolled students to a group of the course. Existing memberships are counted
// as duplicates and students not enrolled in the course are skipped.
func (svc *Service) AddMembers(ctx context.Context, courseID, groupID int64, am AddMembers) (MembershipReport, error) {
	if len(am.StudentIDs) == 0 {
		return MembershipReport{}, ErrStudentsRequired
	}
	var report MembershipReport
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if _, err := svc.repo.GetCourseByID(ctx, courseID, tx); err != nil {
			return err
		}
		if _, err := svc.repo.GetGroupByID(ctx, groupID, tx); err != nil {
			return err
		}
		for _, sid := range am.StudentIDs {
			enrolled, err := svc.repo.IsEnrolled(ctx, courseID, sid, tx)
			if err != nil {
				return errors.Wrap(err, "checking enrollment")
			}
			if !enrolled {
				report.NotEnrolledCount++
				continue
			}
			added, err := svc.repo.AddGroupMember(ctx, courseID, groupID, sid, NowFunc().UTC(), tx)
			if err != nil {
				return errors.Wrap(err, "adding group member")
			}
			if added {
				report.SuccessCount++
			} else {
				report.DuplicateCount++
			}
		}
		return nil
	})
	return report, err
}

func (svc *Service) Members(ctx context.Context, courseID, groupID int64) ([]Member, error) {
	return svc.repo.QueryGroupMembers(ctx, courseID, groupID)
}

func (svc *Service) RemoveMember(ctx context.Context, courseID, groupID, studentID int64) error {
	removed, err := svc.repo.RemoveGroupMember(ctx, courseID, groupID, studentID)
	if err != nil {
		return errors.Wrap(err, "removing group member")
	}
	if !removed {
		return ErrMemberNotFound
	}
	return nil
}

// StudentCourses lists the courses of a resolved student.
func (svc *Service) StudentCourses(ctx context.Context, res roster.Resolution) ([]CourseDetail, error) {
	if err := res.Err(); err != nil {
		if errors.Cause(err) == roster.ErrStudentNotFound {
			return nil, roster.ErrStudentUnlinked
		}
		return nil, err
	}
	return svc.repo.QueryStudentCourses(ctx, res.Student.ID)
}
