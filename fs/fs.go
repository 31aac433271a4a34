// Package appfs embeds the files the binaries ship with.
package appfs

import "embed"

const (
	MigrationsDir      = "migrations"
	EmailTemplatesDir  = "templates/email"
	CommonPasswordsTxt = "assets/common-passwords.txt"
)

//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS
