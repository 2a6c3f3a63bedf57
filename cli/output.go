package cli

import (
	"encoding/json"
	"io"

	"github.com/fatih/color"
	"github.com/joe-ervin05/litetable/tools"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, args ...any) {
	successColor.Fprintf(w, "✓ "+format+"\n", args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	warningColor.Fprintf(w, "! "+format+"\n", args...)
}

func printInfo(w io.Writer, format string, args ...any) {
	infoColor.Fprintf(w, format+"\n", args...)
}

// printError prints the stable error code, the message and a hint.
func printError(w io.Writer, err error) {
	info := tools.DescribeError(err)
	errorColor.Fprintf(w, "✗ %s: %s\n", info.Code, info.Message)
	if info.Hint != "" {
		infoColor.Fprintf(w, "  %s\n", info.Hint)
	}
}

// writeJSONLine writes v as one line of JSON.
func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func writeJSONIndent(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
