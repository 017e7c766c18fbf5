// Command organizer-token signs an ORGANIZER access token for the check-in
// API, reading JWT_SECRET from the environment or .env.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/qr-checkin/internal/middleware"
	"github.com/iliyamo/qr-checkin/internal/utils"
)

func main() {
	name := flag.String("organizer", "", "organizer label recorded on issued codes")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if *name == "" {
		log.Fatal("-organizer is required")
	}

	tok, err := utils.NewAccessToken(secret, *name, middleware.RoleOrganizer, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
