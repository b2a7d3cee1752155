// Package main wires the layers together: repositories → services → hub
// callbacks → handlers → routes.
package main

import (
	"database/sql"

	"github.com/akinalp/corkboard/repository"
)

// Repositories groups every repository instance.
type Repositories struct {
	User       repository.UserRepository
	Server     repository.ServerRepository
	Membership repository.MembershipRepository
	Channel    repository.ChannelRepository
	Message    repository.MessageRepository
	Invite     repository.InviteRepository
}

// initRepositories builds every repository on the shared pool.
func initRepositories(conn *sql.DB) *Repositories {
	return &Repositories{
		User:       repository.NewSQLiteUserRepo(conn),
		Server:     repository.NewSQLiteServerRepo(conn),
		Membership: repository.NewSQLiteMembershipRepo(conn),
		Channel:    repository.NewSQLiteChannelRepo(conn),
		Message:    repository.NewSQLiteMessageRepo(conn),
		Invite:     repository.NewSQLiteInviteRepo(conn),
	}
}
