package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"quantlab/pkg/quantlab"
)

func main() {
	godotenv.Load()

	server := flag.String("server", envOr("QUANTLAB_SERVER", "http://localhost:8080"), "quantlab-server base URL")
	role := flag.String("role", envOr("QUANTLAB_ROLE", "researcher"), "role sent with each request")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	client := quantlab.NewClient(*server, quantlab.WithRole(*role))
	ctx := context.Background()

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "submit":
		err = runSubmit(ctx, client, args)
	case "get":
		err = runGet(ctx, client, args)
	case "list":
		err = runList(ctx, client, args)
	case "cancel":
		err = withRunID(args, client.CancelBacktest)
	case "delete":
		err = withRunID(args, client.DeleteBacktest)
	case "create-strategy":
		err = runCreateStrategy(ctx, client, args)
	case "strategies":
		err = runStrategies(ctx, client)
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: quantlab-cli [-server URL] [-role ROLE] <command> [flags]

commands:
  submit           submit a backtest
  get              show one run
  list             list runs
  cancel           cancel a running backtest
  delete           delete a run record
  create-strategy  store a strategy document
  strategies       list stored strategies`)
	os.Exit(2)
}

func runSubmit(ctx context.Context, client *quantlab.Client, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	name := fs.String("name", "", "run name")
	strategyID := fs.String("strategy", "", "strategy ID")
	symbol := fs.String("symbol", "", "symbol")
	timeframe := fs.String("timeframe", "1d", "bar timeframe")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	capital := fs.Float64("capital", 10000, "initial capital")
	commission := fs.Float64("commission", 0.001, "commission rate")
	slippage := fs.Float64("slippage", 0, "slippage rate")
	wait := fs.Bool("wait", false, "poll until the run finishes")
	fs.Parse(args)

	id, err := client.SubmitBacktest(ctx, quantlab.SubmitBacktestRequest{
		Name:           *name,
		StrategyID:     *strategyID,
		Symbol:         *symbol,
		Timeframe:      *timeframe,
		StartDate:      *start,
		EndDate:        *end,
		InitialCapital: *capital,
		CommissionRate: *commission,
		SlippageRate:   *slippage,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)

	if !*wait {
		return nil
	}
	run, err := client.WaitBacktest(ctx, id, time.Second)
	if err != nil {
		return err
	}
	return printJSON(run)
}

func runGet(ctx context.Context, client *quantlab.Client, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	id := fs.String("id", "", "run ID")
	fs.Parse(args)

	run, err := client.GetBacktest(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(run)
}

func runList(ctx context.Context, client *quantlab.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	strategyID := fs.String("strategy", "", "filter by strategy ID")
	status := fs.String("status", "", "filter by status")
	fs.Parse(args)

	runs, err := client.ListBacktests(ctx, *strategyID, *status)
	if err != nil {
		return err
	}
	for _, run := range runs {
		ret := ""
		if run.TotalReturn != nil {
			ret = fmt.Sprintf(" return=%.4f", *run.TotalReturn)
		}
		fmt.Printf("%s  %-9s  %s %s %s..%s%s\n",
			run.ID, run.Status, run.Symbol, run.Timeframe,
			run.StartDate.Format("2006-01-02"), run.EndDate.Format("2006-01-02"), ret)
	}
	return nil
}

func withRunID(args []string, fn func(context.Context, string) error) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	id := fs.String("id", "", "run ID")
	fs.Parse(args)
	return fn(context.Background(), *id)
}

func runCreateStrategy(ctx context.Context, client *quantlab.Client, args []string) error {
	fs := flag.NewFlagSet("create-strategy", flag.ExitOnError)
	name := fs.String("name", "", "strategy name")
	description := fs.String("description", "", "strategy description")
	file := fs.String("file", "", "path to the JSON rule document")
	fs.Parse(args)

	doc, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	strat, err := client.CreateStrategy(ctx, quantlab.CreateStrategyRequest{
		Name:        *name,
		Description: *description,
		Config:      string(doc),
	})
	if err != nil {
		return err
	}
	fmt.Println(strat.ID)
	return nil
}

func runStrategies(ctx context.Context, client *quantlab.Client) error {
	strategies, err := client.ListStrategies(ctx)
	if err != nil {
		return err
	}
	for _, s := range strategies {
		fmt.Printf("%s  %s\n", s.ID, s.Name)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
