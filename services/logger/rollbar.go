package logsvc

import (
	"log"
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
)

// RollbarLogger prints every entry to a std logger and reports Info and above to rollbar.
// Rollbar stays silent without a token and in test mode.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// person picks the account an entry is about, if any.
func person(arg interface{}) (account.Account, bool) {
	switch acc := arg.(type) {
	case account.Account:
		return acc, acc.ID != 0
	case *account.Account:
		if acc != nil && acc.ID != 0 {
			return *acc, true
		}
	}
	return account.Account{}, false
}

// report sends an entry to rollbar. Args are errors, map[string]interface{} extras and
// at most one account (the first one wins), which becomes the rollbar person.
func (l RollbarLogger) report(level, msg string, args []interface{}) {
	var who *account.Account
	items := make([]interface{}, 0, len(args)+1)
	items = append(items, msg)
	for _, arg := range args {
		if acc, ok := person(arg); ok {
			if who == nil {
				who = &acc
			}
			continue
		}
		items = append(items, arg)
	}

	if who != nil {
		rollbar.SetPerson(strconv.FormatInt(who.ID, 10), who.Username, who.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, items...)
}

func (l RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		if acc, ok := person(arg); ok {
			l.std.Printf("  account: %d (%s, %s)", acc.ID, acc.Username, acc.Role)
			continue
		}
		l.std.Printf("  %+v", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.print(rollbar.DEBUG, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
	l.print(rollbar.INFO, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.print(rollbar.WARN, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.print(rollbar.ERR, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.print(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
