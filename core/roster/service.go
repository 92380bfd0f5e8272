package roster

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Student, error)
		// GetStudentByName returns the oldest student whose name is exactly `name`.
		GetStudentByName(ctx context.Context, name string, exec ...core.DBExecutor) (Student, error)
		GetStudentByAccountID(ctx context.Context, accountID int64, exec ...core.DBExecutor) (Student, error)
		QueryStudentsByEmail(ctx context.Context, email string, exec ...core.DBExecutor) ([]Student, error)
		QueryUnlinkedStudents(ctx context.Context, exec ...core.DBExecutor) ([]Student, error)
		// LinkStudent sets the account back-reference of an unlinked student and backfills its email.
		// It reports false when the student was already linked.
		LinkStudent(ctx context.Context, studentID, accountID int64, email string, exec ...core.DBExecutor) (bool, error)
		QueryStudents(ctx context.Context, filter StudentFilter, exec ...core.DBExecutor) ([]Student, int, error)

		CreateProfessor(ctx context.Context, prof Professor, exec ...core.DBExecutor) (Professor, error)
		GetProfessorByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Professor, error)
		QueryProfessorsByEmail(ctx context.Context, email string, exec ...core.DBExecutor) ([]Professor, error)
		QueryProfessorsWithoutEmail(ctx context.Context, exec ...core.DBExecutor) ([]Professor, error)
		UpdateProfessor(ctx context.Context, prof Professor, exec ...core.DBExecutor) (Professor, error)
		QueryProfessorSummaries(ctx context.Context, exec ...core.DBExecutor) ([]ProfessorSummary, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		accounts account.Repository
		resolver *Resolver
	}
)

func NewService(db core.DB, repo Repository, accounts account.Repository, resolver *Resolver) *Service {
	return &Service{db: db, repo: repo, accounts: accounts, resolver: resolver}
}

func (svc *Service) Resolver() *Resolver { return svc.resolver }

// ImportStudents creates a student for every CSV name not already on file (exact name match).
func (svc *Service) ImportStudents(ctx context.Context, r io.Reader) (ImportReport, error) {
	rows, err := ParseNames(r)
	if err != nil {
		return ImportReport{}, err
	}

	var report ImportReport
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		for i, row := range rows {
			if row.Name == "" {
				report.addError(fmt.Sprintf("Row %d: missing student name", row.Line))
				continue
			}
			var dup bool
			spErr := core.WithSavepoint(ctx, tx, core.SavepointName("import_student", i), func() error {
				_, err := svc.repo.GetStudentByName(ctx, row.Name, tx)
				if err == nil {
					dup = true
					return nil
				}
				if errors.Cause(err) != ErrStudentNotFound {
					return err
				}
				_, err = svc.repo.CreateStudent(ctx, Student{Name: row.Name, CreatedAt: NowFunc().UTC()}, tx)
				return err
			})
			switch {
			case spErr != nil:
				report.addError(fmt.Sprintf("Row %d (%s): %v", row.Line, row.Name, errors.Cause(spErr)))
			case dup:
				report.DuplicateCount++
			default:
				report.SuccessCount++
			}
		}
		return nil
	})
	if err != nil {
		return ImportReport{}, errors.Wrap(err, "importing students")
	}
	return report, nil
}

func (svc *Service) GetStudent(ctx context.Context, id int64) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

// QueryStudents returns a page of students and the total count of matches.
func (svc *Service) QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, int, error) {
	filter.Clean()
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) QueryProfessors(ctx context.Context) ([]ProfessorSummary, error) {
	return svc.repo.QueryProfessorSummaries(ctx)
}

// LinkAccount opportunistically links a student account to its record.
// Non-student accounts are ignored.
func (svc *Service) LinkAccount(ctx context.Context, acc account.Account) (Resolution, error) {
	if !acc.IsStudent() {
		return Resolution{Outcome: Unresolved}, nil
	}
	return svc.resolver.ResolveStudent(ctx, IdentityOf(acc))
}

// ResolveStudentByEmail resolves the student designated by an email: the account owning the email
// when there is one (back-reference, email then name), the student records carrying it otherwise.
func (svc *Service) ResolveStudentByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (Resolution, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return Resolution{Outcome: Unresolved}, nil
	}
	id := Identity{Email: email}
	acc, err := svc.accounts.GetAccountByEmail(ctx, email, exec...)
	switch {
	case err == nil:
		id = IdentityOf(acc)
	case errors.Cause(err) != account.ErrNotFound:
		return Resolution{}, errors.Wrap(err, "finding account by email")
	}
	return svc.resolver.ResolveStudent(ctx, id, exec...)
}
