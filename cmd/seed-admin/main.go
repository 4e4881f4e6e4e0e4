package main

import (
	"log"
	"os"
	"strings"

	"github.com/playpool/billiards/internal/admin"
	"github.com/playpool/billiards/internal/config"
	"github.com/playpool/billiards/internal/database"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if db == nil {
		log.Fatal("DATABASE_URL is required to seed an admin account")
	}
	defer db.Close()

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
		log.Printf("Using default admin username: %s", username)
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("ADMIN_PASSWORD must be set (at least 8 characters)")
	}

	displayName := os.Getenv("ADMIN_DISPLAY_NAME")
	if displayName == "" {
		displayName = "Admin"
	}
	roles := []string{"super_admin"}
	var allowedIPs []string // empty = any address
	if ips := os.Getenv("ADMIN_ALLOWED_IPS"); ips != "" {
		for _, ip := range strings.Split(ips, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				allowedIPs = append(allowedIPs, ip)
			}
		}
	}

	if err := admin.CreateAdminAccount(db, username, displayName, password, roles, allowedIPs); err != nil {
		log.Fatalf("Failed to create admin account: %v", err)
	}

	log.Printf("Admin account created/updated")
	log.Printf("  Username: %s", username)
	log.Printf("  Display Name: %s", displayName)
	log.Printf("  Roles: %v", roles)
	if len(allowedIPs) > 0 {
		log.Printf("  Allowed IPs: %v", allowedIPs)
	}
	log.Println("Log in with POST /api/v1/admin/login")
}
