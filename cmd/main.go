package main

import (
	"github.com/exec-collector/cmd/agent"
)

func main() {
	agent.Execute()
}
