package main

import (
	"github.com/stackfold/stackfold/internal/cli/cmd"
	"github.com/stackfold/stackfold/pkg/maxprocs"
)

func main() {
	maxprocs.Adjust()
	cmd.Execute()
}
