package configuration

import (
	_ "embed"

	operations "github.com/goliatone/go-operations"
)

//go:embed workflow.yaml
var workflowYAML []byte

// Workflow declares the configuration update states handled by Manager.
func Workflow() operations.Workflow {
	wf, err := operations.ParseWorkflow("configuration", workflowYAML, operations.FormatYAML)
	if err != nil {
		panic(err)
	}
	return wf
}
