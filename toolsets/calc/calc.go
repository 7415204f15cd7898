// Package calc provides the arithmetic calculator tool.
package calc

import (
	"context"
	"errors"
	"strconv"

	"github.com/arunksingh16/mcp/mcp"
	"github.com/arunksingh16/mcp/registry"
)

type args struct {
	Operation string  `json:"operation" jsonschema:"enum=add,enum=subtract,enum=multiply,enum=divide,description=Arithmetic operation to perform"`
	A         float64 `json:"a" jsonschema:"description=First operand"`
	B         float64 `json:"b" jsonschema:"description=Second operand"`
}

// Tool returns the calculator tool definition.
func Tool() registry.ToolDef {
	return registry.NewTool[args]("calculator", run,
		registry.WithDescription("Performs basic arithmetic: add, subtract, multiply, divide."),
	)
}

func run(ctx context.Context, a args) (*mcp.CallToolResult, error) {
	var v float64
	switch a.Operation {
	case "add":
		v = a.A + a.B
	case "subtract":
		v = a.A - a.B
	case "multiply":
		v = a.A * a.B
	case "divide":
		if a.B == 0 {
			return nil, errors.New("Cannot divide by zero")
		}
		v = a.A / a.B
	default:
		return nil, errors.New("unknown operation: " + a.Operation)
	}
	return registry.TextResult(formatNumber(v)), nil
}

// formatNumber renders without a trailing ".0" for integral results, so
// 2+3 reads "5" rather than "5.000000".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
