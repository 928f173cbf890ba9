package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikey/sift-mail/internal/adapters/rfc822"
	"github.com/mikey/sift-mail/internal/core"
	"github.com/mikey/sift-mail/internal/di"
	"go.uber.org/zap"
)

type report struct {
	ID         string   `json:"id,omitempty"`
	From       string   `json:"from"`
	Subject    string   `json:"subject"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
	Threshold  float64  `json:"threshold"`
	Quarantine bool     `json:"quarantine"`
}

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	parser *rfc822.Parser,
	rules core.RuleSet,
	threshold di.Threshold,
) error {
	defer logger.Sync()

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	msg, err := parser.Parse(emailReader)
	if err != nil {
		return err
	}

	result := core.ScoreMessage(msg.Headers, msg.Snippet, rules)
	out := report{
		ID:         msg.ID,
		From:       msg.Headers["From"],
		Subject:    msg.Headers["Subject"],
		Score:      result.Score,
		Reasons:    result.Reasons,
		Threshold:  float64(threshold),
		Quarantine: core.MeetsThreshold(result.Score, float64(threshold)),
	}

	if flags.JSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", out.From)
	fmt.Printf("Subject: %s\n", out.Subject)
	fmt.Printf("Snippet: %s\n", msg.Snippet)
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Score: %.2f\n", out.Score)
	fmt.Printf("Threshold: %.2f\n", out.Threshold)
	fmt.Printf("Reasons: %s\n", strings.Join(out.Reasons, ", "))
	fmt.Printf("Quarantine: %t\n", out.Quarantine)
	return nil
}
