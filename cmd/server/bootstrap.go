package main

import (
	"fmt"

	"github.com/equential/classvote/internal/api"
	"github.com/equential/classvote/internal/config"
	"github.com/equential/classvote/internal/services"
)

// runCreateAdmin bootstraps the first administrator:
//
//	server create-admin <email> <full name>
//
// Admins are not enrolled into experiments; they get a dashboard URL instead.
func runCreateAdmin(store api.Store, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: server create-admin <email> <full name>")
	}
	email, fullName := args[0], args[1]
	u, err := services.NewUserService(store).CreateUser(email, fullName, true)
	if err != nil {
		return err
	}
	fmt.Println("Admin user created successfully!")
	fmt.Printf("Email: %s\n", u.Email)
	fmt.Printf("Admin dashboard: %s/admin/%s\n", cfg.BaseURL, u.AccessID)
	return nil
}
