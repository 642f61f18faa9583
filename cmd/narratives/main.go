package main

import (
	"os"

	"horse.fit/narratives/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
