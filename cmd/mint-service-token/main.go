// mint-service-token prints a signed JWT a service integration can send
// in the token header instead of holding a Redis session. The username
// must belong to an existing (usually admin) user.
//
// Usage:
//   API_SECRET=... go run ./cmd/mint-service-token -username countsAdmin -role A
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

func main() {
	userID := flag.Int("user-id", 0, "user id embedded in the claim")
	username := flag.String("username", "", "username the token acts as")
	role := flag.String("role", "C", "role claim (A admin, C staff)")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "-username is required")
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(*userID, *username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
