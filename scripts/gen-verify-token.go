package main

import (
	"fmt"
	"os"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/util"
)

func main() {
	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
