package main

import (
	"github.com/feed-collector/cmd/agent"
)

func main() {
	agent.Execute()
}
