package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/course"
	"github.com/trezcool/peereval/core/roster"
	logsvc "github.com/trezcool/peereval/services/logger"
	"github.com/trezcool/peereval/storage/database"
)

// PrepareDB opens a migrated SQLite database living in the test's temp dir.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = core.EngineSqlite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() migrate failed: %v", err)
	}
	return db
}

func CreateAccount(t *testing.T, repo account.Repository, uname, email, pwd, role string, createdAt ...time.Time) account.Account {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	acc := account.Account{
		Username:  uname,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, err := repo.CreateAccount(context.Background(), acc)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc
}

func CreateStudent(t *testing.T, repo roster.Repository, name, email string) roster.Student {
	t.Helper()

	st, err := repo.CreateStudent(context.Background(), roster.Student{
		Name:      name,
		Email:     null.NewString(email, email != ""),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return st
}

func CreateProfessor(t *testing.T, repo roster.Repository, name, email string) roster.Professor {
	t.Helper()

	prof, err := repo.CreateProfessor(context.Background(), roster.Professor{
		Name:      name,
		Email:     null.NewString(email, email != ""),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateProfessor() failed: %v", err)
	}
	return prof
}

func CreateCourse(t *testing.T, repo course.Repository, professorID int64, name, semester string) course.Course {
	t.Helper()

	c, err := repo.CreateCourse(context.Background(), course.Course{
		ProfessorID: professorID,
		Name:        name,
		Semester:    semester,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func CreateGroup(t *testing.T, repo course.Repository, name string) course.Group {
	t.Helper()

	g, err := repo.CreateGroup(context.Background(), course.Group{Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return g
}

// Enroll enrolls the students in the course.
func Enroll(t *testing.T, repo course.Repository, courseID int64, studentIDs ...int64) {
	t.Helper()

	for _, sid := range studentIDs {
		if _, err := repo.Enroll(context.Background(), courseID, sid, time.Now().UTC()); err != nil {
			t.Fatalf("Enroll() failed: %v", err)
		}
	}
}

// AddMembers enrolls the students in the course and adds them to the group.
func AddMembers(t *testing.T, repo course.Repository, courseID, groupID int64, studentIDs ...int64) {
	t.Helper()

	Enroll(t, repo, courseID, studentIDs...)
	for _, sid := range studentIDs {
		if _, err := repo.AddGroupMember(context.Background(), courseID, groupID, sid, time.Now().UTC()); err != nil {
			t.Fatalf("AddMembers() failed: %v", err)
		}
	}
}

// NewLogger returns a logger writing nowhere; rollbar stays disabled in test mode.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
}
