package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/statement"
)

// readInput reads the file at path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	}
	return data, nil
}

// decodeStatements accepts a single statement object or an array of them.
func decodeStatements(data []byte) ([]statement.Statement, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewExitError(ExitCommandError, "input is empty")
	}
	if trimmed[0] != '[' {
		s, err := statement.Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []statement.Statement{s}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, WrapExitError(ExitCommandError, "input is not a JSON array", err)
	}
	out := make([]statement.Statement, 0, len(raw))
	for i, r := range raw {
		s, err := statement.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseObject decodes a JSON object flag value. Numbers stay json.Number.
func parseObject(flag, value string) (map[string]any, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s JSON object", flag), err)
	}
	return out, nil
}

// splitList splits a comma separated flag value, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
