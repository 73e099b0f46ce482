package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"smartgateway/internal/automation"
	"smartgateway/internal/config"
	"smartgateway/internal/llm"
	"smartgateway/internal/switchbot"
	"smartgateway/internal/utils"
	"smartgateway/internal/workflow"
)

// Workflow tester: parses instructions and, with "-eval", evaluates the
// parsed conditions against the live SwitchBot account.
//
//	go run ./scripts "毎朝7時に照明をつけて"
//	go run ./scripts -eval "暑かったらエアコンをつけて"
//	go run ./scripts            (interactive)
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger := utils.InitLogging(cfg.LogLevel, cfg.LogFormat)

	var client llm.Client
	if cfg.OpenAIAPIKey != "" {
		client = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	parser := workflow.NewParser(client, logger)

	args := os.Args[1:]
	eval := len(args) > 0 && args[0] == "-eval"
	if eval {
		args = args[1:]
	}

	var evaluator *automation.Evaluator
	if eval {
		if cfg.SwitchBotToken == "" {
			fmt.Fprintln(os.Stderr, "-eval needs SWITCHBOT_TOKEN and SWITCHBOT_SECRET")
			os.Exit(1)
		}
		devices := switchbot.NewClient(cfg.SwitchBotToken, cfg.SwitchBotSecret,
			switchbot.WithBaseURL(cfg.SwitchBotBaseURL),
			switchbot.WithLogger(logger),
		)
		evaluator = automation.NewEvaluator(devices, automation.WithLocation(cfg.Location()), automation.WithLogger(logger))
	}

	if len(args) > 0 {
		for _, text := range args {
			run(parser, evaluator, text)
		}
		return
	}

	fmt.Println("Workflow tester. Enter an instruction per line, empty line to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return
		}
		run(parser, evaluator, text)
	}
}

func run(parser *workflow.Parser, evaluator *automation.Evaluator, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	wf := parser.ParseWorkflow(ctx, text, "cli")
	printJSON(wf)

	if evaluator == nil || wf.ParsedRule == nil {
		return
	}
	result := evaluator.EvaluateConditions(ctx, wf.ParsedRule.Conditions)
	printJSON(result)
	if result.AllMet {
		fmt.Printf("rule would fire: %d action(s)\n", len(wf.ParsedRule.Actions))
	} else {
		fmt.Println("rule would not fire")
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		return
	}
	fmt.Println(string(out))
}
