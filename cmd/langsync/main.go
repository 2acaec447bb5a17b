package main

import (
	"os"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
