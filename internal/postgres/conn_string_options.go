package postgres

import "fmt"

var DevConnStringOptions = &ConnStringOptions{
	Host:     "localhost",
	Port:     5432,
	UserName: "postgres",
	Password: "password",
}

type ConnStringOptions struct {
	Host     string
	Port     int
	UserName string
	Password string
	// DBName overrides the default database name when set.
	DBName string
}

func (opt *ConnStringOptions) GetConnString(dbName string) string {
	return opt.getConnString(dbName, false)
}

func (opt *ConnStringOptions) GetDebugConnString(dbName string) string {
	return opt.getConnString(dbName, true)
}

func (opt *ConnStringOptions) appDBName() string {
	if opt.DBName != "" {
		return opt.DBName
	}
	return dbMinix
}

func (opt *ConnStringOptions) getConnString(dbName string, hidePassword bool) string {
	password := opt.Password
	if hidePassword && opt.Password != "" {
		password = "***"
	}
	userName := opt.UserName
	if userName == "" {
		userName = "postgres"
	}

	return fmt.Sprintf(
		"postgres://%s:%d/%s?user=%s&password=%s",
		opt.Host,
		opt.Port,
		dbName,
		userName,
		password,
	)
}
