// cmd/lrbinner/main.go
package main

import (
	"lrbinner/internal/app"
	"lrbinner/internal/appshell"
)

func main() { appshell.Main(app.RunContext) }
