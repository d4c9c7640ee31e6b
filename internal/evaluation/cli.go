package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/oklog/ulid/v2"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// CLIValidator invokes the external NWB validator as a subprocess, mirroring
// CLILibrary's argv-template shape. The command is invoked as:
//
//	<Command...> <nwbPath>
//
// and is expected to print a JSON array of ValidationIssue on stdout.
type CLIValidator struct {
	Command []string
}

// NewCLIValidator creates a Validator backed by an external command.
func NewCLIValidator(command []string) *CLIValidator {
	return &CLIValidator{Command: command}
}

func (v *CLIValidator) Validate(ctx context.Context, nwbPath string) ([]types.ValidationIssue, error) {
	if len(v.Command) == 0 {
		return nil, fmt.Errorf("validator command not configured")
	}

	args := append([]string{}, v.Command[1:]...)
	args = append(args, nwbPath)

	cmd := exec.CommandContext(ctx, v.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("validator command failed: %w: %s", err, stderr.String())
	}

	var issues []types.ValidationIssue
	if err := json.Unmarshal(stdout.Bytes(), &issues); err != nil {
		return nil, fmt.Errorf("decode validator output: %w", err)
	}

	// The external validator's JSON carries no stable issue identity; assign
	// one here so downstream clustering (enrichClusters) can key on it.
	for i := range issues {
		if issues[i].ID == "" {
			issues[i].ID = ulid.Make().String()
		}
	}
	return issues, nil
}
