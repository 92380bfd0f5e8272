package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/roster"
	emailsvc "github.com/trezcool/peereval/services/email"
	logsvc "github.com/trezcool/peereval/services/logger"
	"github.com/trezcool/peereval/storage/database"
	sqlxrepos "github.com/trezcool/peereval/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		std.Fatalf("creating database: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		std.Fatalf("opening database: %v", err)
	}

	// set up services
	accountRepo := sqlxrepos.NewAccountRepository(db)
	rosterRepo := sqlxrepos.NewRosterRepository(db)
	resolver := roster.NewResolver(rosterRepo, roster.NewNameMatcher(conf.Matching.NameThreshold))

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator, conf.PasswordMinLength)

	// start CLI
	cli := commandLine{
		db:         db,
		engine:     conf.Database.Engine,
		logger:     std,
		accountSvc: account.NewService(accountRepo, emailsvc.New(conf, logger), conf),
		rosterSvc:  roster.NewService(db, rosterRepo, accountRepo, resolver),
		validate:   validate,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
