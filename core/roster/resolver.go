package roster

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
)

var (
	ErrStudentNotFound  = core.NewNotFoundError("Student not found")
	ErrStudentUnlinked  = core.NewNotFoundError("Student not found. Please ensure you are enrolled in courses.")
	ErrAmbiguousStudent = core.NewConflictError("several student records match this account; ask your professor to link it")
	ErrAmbiguousProf    = core.NewConflictError("several professor records match this account")
	ErrProfessorMissing = core.NewNotFoundError("Professor not found")
)

// Identity is what is known about a person when looking up their domain record.
type Identity struct {
	AccountID int64
	Email     string
	Name      string // "first last", or the username
}

func IdentityOf(acc account.Account) Identity {
	return Identity{AccountID: acc.ID, Email: acc.Email, Name: acc.FullName()}
}

// Resolution is the result of a student lookup.
type Resolution struct {
	Student Student
	Outcome Outcome
	// Linked is set when the lookup persisted a new back-reference.
	Linked bool
}

// Err maps unresolved and ambiguous outcomes to errors.
func (r Resolution) Err() error {
	switch r.Outcome {
	case Resolved:
		return nil
	case Ambiguous:
		return ErrAmbiguousStudent
	default:
		return ErrStudentNotFound
	}
}

// Resolver links accounts to their student and professor records.
type Resolver struct {
	repo    Repository
	matcher NameMatcher
}

func NewResolver(repo Repository, matcher NameMatcher) *Resolver {
	return &Resolver{repo: repo, matcher: matcher}
}

// ResolveStudent finds the student record of `id`, trying in order the account back-reference,
// the email, then the name among unlinked records. A record found by email or name is linked
// to the account (and its email backfilled) so later lookups hit the back-reference.
// Students are never created here.
func (r *Resolver) ResolveStudent(ctx context.Context, id Identity, exec ...core.DBExecutor) (Resolution, error) {
	// 1. back-reference
	if id.AccountID != 0 {
		st, err := r.repo.GetStudentByAccountID(ctx, id.AccountID, exec...)
		if err == nil {
			return Resolution{Student: st, Outcome: Resolved}, nil
		}
		if errors.Cause(err) != ErrStudentNotFound {
			return Resolution{}, errors.Wrap(err, "finding student by account")
		}
	}

	// 2. email
	if email := core.CleanString(id.Email, true /* lower */); email != "" {
		students, err := r.repo.QueryStudentsByEmail(ctx, email, exec...)
		if err != nil {
			return Resolution{}, errors.Wrap(err, "finding students by email")
		}
		candidates := make([]Student, 0, len(students))
		for _, st := range students {
			if !st.AccountID.Valid || st.AccountID.Int64 == id.AccountID {
				candidates = append(candidates, st)
			}
		}
		switch len(candidates) {
		case 0:
		case 1:
			return r.link(ctx, candidates[0], id, exec...)
		default:
			return Resolution{Outcome: Ambiguous}, nil
		}
	}

	// 3. name, among records nobody claimed yet
	if id.AccountID == 0 || core.NormalizeName(id.Name) == "" {
		return Resolution{Outcome: Unresolved}, nil
	}
	unlinked, err := r.repo.QueryUnlinkedStudents(ctx, exec...)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "querying unlinked students")
	}
	names := make([]string, len(unlinked))
	for i, st := range unlinked {
		names[i] = st.Name
	}
	idx, outcome := r.matcher.Match(id.Name, names)
	if outcome != Resolved {
		return Resolution{Outcome: outcome}, nil
	}
	return r.link(ctx, unlinked[idx], id, exec...)
}

func (r *Resolver) link(ctx context.Context, st Student, id Identity, exec ...core.DBExecutor) (Resolution, error) {
	if id.AccountID == 0 || st.AccountID.Valid {
		return Resolution{Student: st, Outcome: Resolved}, nil
	}
	email := core.CleanString(id.Email, true /* lower */)
	linked, err := r.repo.LinkStudent(ctx, st.ID, id.AccountID, email, exec...)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "linking student")
	}
	if !linked {
		// claimed concurrently by another account
		return Resolution{Outcome: Unresolved}, nil
	}
	st.AccountID = null.Int64From(id.AccountID)
	if !st.Email.Valid && email != "" {
		st.Email = null.StringFrom(email)
	}
	return Resolution{Student: st, Outcome: Resolved, Linked: true}, nil
}

// FindProfessor looks a professor record up by email, then by name among records without email.
// It never writes.
func (r *Resolver) FindProfessor(ctx context.Context, email, name string, exec ...core.DBExecutor) (Professor, Outcome, error) {
	if email = core.CleanString(email, true /* lower */); email != "" {
		profs, err := r.repo.QueryProfessorsByEmail(ctx, email, exec...)
		if err != nil {
			return Professor{}, Unresolved, errors.Wrap(err, "finding professors by email")
		}
		switch len(profs) {
		case 0:
		case 1:
			return profs[0], Resolved, nil
		default:
			return Professor{}, Ambiguous, nil
		}
	}

	if core.NormalizeName(name) == "" {
		return Professor{}, Unresolved, nil
	}
	anonymous, err := r.repo.QueryProfessorsWithoutEmail(ctx, exec...)
	if err != nil {
		return Professor{}, Unresolved, errors.Wrap(err, "querying professors without email")
	}
	names := make([]string, len(anonymous))
	for i, p := range anonymous {
		names[i] = p.Name
	}
	idx, outcome := r.matcher.Match(name, names)
	if outcome != Resolved {
		return Professor{}, outcome, nil
	}
	return anonymous[idx], Resolved, nil
}

// FindOrCreateProfessor returns the professor record of `acc`, creating it when none matches.
// Lookup order: professorID (when non-zero), email, then name among records without email.
// Missing name or email of a found record are backfilled from the account.
func (r *Resolver) FindOrCreateProfessor(
	ctx context.Context,
	acc account.Account,
	professorID int64,
	exec ...core.DBExecutor,
) (prof Professor, created bool, err error) {
	if professorID != 0 {
		prof, err = r.repo.GetProfessorByID(ctx, professorID, exec...)
		if err == nil {
			prof, err = r.backfillProfessor(ctx, prof, acc, exec...)
			return prof, false, err
		}
		if errors.Cause(err) != ErrProfessorMissing {
			return Professor{}, false, errors.Wrap(err, "finding professor by id")
		}
	}

	prof, outcome, err := r.FindProfessor(ctx, acc.Email, acc.FullName(), exec...)
	if err != nil {
		return Professor{}, false, err
	}
	switch outcome {
	case Resolved:
		prof, err = r.backfillProfessor(ctx, prof, acc, exec...)
		return prof, false, err
	case Ambiguous:
		return Professor{}, false, ErrAmbiguousProf
	}

	name := acc.FullName()
	if name == "" {
		name = "Professor"
	}
	email := core.CleanString(acc.Email, true /* lower */)
	prof = Professor{
		Name:      name,
		Email:     null.NewString(email, email != ""),
		CreatedAt: NowFunc().UTC(),
	}
	prof, err = r.repo.CreateProfessor(ctx, prof, exec...)
	if err != nil {
		return Professor{}, false, errors.Wrap(err, "creating professor")
	}
	return prof, true, nil
}

func (r *Resolver) backfillProfessor(ctx context.Context, prof Professor, acc account.Account, exec ...core.DBExecutor) (Professor, error) {
	var dirty bool
	if !prof.Email.Valid && acc.Email != "" {
		prof.Email = null.StringFrom(core.CleanString(acc.Email, true /* lower */))
		dirty = true
	}
	if core.CleanString(prof.Name) == "" && acc.FullName() != "" {
		prof.Name = acc.FullName()
		dirty = true
	}
	if !dirty {
		return prof, nil
	}
	prof, err := r.repo.UpdateProfessor(ctx, prof, exec...)
	return prof, errors.Wrap(err, "backfilling professor")
}
