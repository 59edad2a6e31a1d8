// cmd/igia/main.go
package main

import (
	"igia/internal/app"
	"igia/internal/appshell"
)

func main() { appshell.Main(app.RunContext) }
