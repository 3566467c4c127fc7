package main

import (
	"github.com/mchmarny/loanrisk/pkg/cli"
)

func main() {
	cli.Execute()
}
