package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression>",
	Short: "Evaluate JavaScript in the page",
	Long:  "Evaluates a JavaScript expression in the page context via Runtime.evaluate, awaiting promises and returning the value by value.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	s, created, err := ensureSession(ctx, cfg)
	if err != nil {
		return outputError(err.Error())
	}
	defer releaseSession(created)

	params := map[string]any{
		"expression":    args[0],
		"returnByValue": true,
		"awaitPromise":  true,
	}
	result, err := s.client.Call(ctx, "Runtime.evaluate", params)
	if err != nil {
		return outputError(err.Error())
	}

	var out struct {
		Result struct {
			Type        string          `json:"type"`
			Subtype     string          `json:"subtype"`
			Value       json.RawMessage `json:"value"`
			Description string          `json:"description"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return outputError(err.Error())
	}

	if det := out.ExceptionDetails; det != nil {
		msg := det.Text
		if det.Exception != nil && det.Exception.Description != "" {
			msg = det.Exception.Description
		}
		return outputError(msg)
	}

	if JSONOutput {
		return outputSuccess(out.Result)
	}
	switch {
	case out.Result.Value != nil:
		fmt.Println(string(out.Result.Value))
	case out.Result.Description != "":
		fmt.Println(out.Result.Description)
	default:
		fmt.Println(out.Result.Type)
	}
	return nil
}
