package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"smartescrow/config"
	"smartescrow/observability/logging"
	escrowotel "smartescrow/observability/otel"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string, out io.Writer) error
}

var commands = []command{
	{"keygen", "keygen --name N                      create a keystore key", runKeygen},
	{"keys", "keys                                 list keystore keys", runKeys},
	{"mint", "mint --token T --to A --amount X     credit the local ledger", runMint},
	{"balance", "balance --token T --holder A | --id E", runBalance},
	{"create", "create --client A --provider B --token T --amounts 10,20 [options]", runCreate},
	{"show", "show --id E | --all", runShow},
	{"deposit", "deposit --id E --from A --amount X [--native]", runDeposit},
	{"wrap-stray", "wrap-stray --id E", runWrapStray},
	{"release", "release --id E --from A [--milestone N]", runRelease},
	{"release-tokens", "release-tokens --id E --from A --token T", runReleaseTokens},
	{"withdraw", "withdraw --id E [--token T]", runWithdraw},
	{"verify", "verify --id E --from A", runVerify},
	{"add-milestones", "add-milestones --id E --from A --amounts 5,5 [--details D]", runAddMilestones},
	{"update", "update --id E --from A [--client|--provider|--client-receiver|--provider-receiver ADDR]", runUpdate},
	{"set-rate", "set-rate --resolver R --bps N [--details D]", runSetRate},
	{"lock", "lock --id E --from A [--details D] [--fee X]", runLock},
	{"resolve", "resolve --id E --from R --client-award-bps N [--details D]", runResolve},
	{"rule", "rule --dispute N --ruling 0|1|2      deliver a court ruling", runRule},
	{"evidence", "evidence --id E --from A --evidence URI", runEvidence},
	{"unlock-sign", "unlock-sign --id E --key NAME --refund-bps N [--uri U] [--milestone M]", runUnlockSign},
	{"unlock", "unlock --id E --from A --refund-bps N --client-sig 0x.. --provider-sig 0x.. [--uri U] [--milestone M]", runUnlock},
	{"claim", "claim --recipient A --token T         withdraw pull payouts", runClaim},
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	defaultConfig := strings.TrimSpace(os.Getenv("ESCROW_CONFIG"))
	if defaultConfig == "" {
		defaultConfig = "escrowctl.toml"
	}

	root := flag.NewFlagSet("escrowctl", flag.ContinueOnError)
	root.SetOutput(stderr)
	configPath := root.String("config", defaultConfig, "path to the TOML or YAML configuration")
	dumpMetrics := root.Bool("metrics", false, "print Prometheus metrics to stderr on exit")
	if err := root.Parse(argv); err != nil {
		return 2
	}
	args := root.Args()
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 2
	}
	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	requestID := uuid.NewString()
	logger, logCloser := logging.Setup(cfg.Telemetry.ServiceName, cfg.Logging.Env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Output:     stderr,
	})
	defer logCloser.Close()
	logger = logger.With("request_id", requestID, "command", cmd.name)

	shutdown, err := escrowotel.Init(ctx, escrowotel.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     escrowotel.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		ChainID:     cfg.ChainID,
		Domain:      cfg.DomainName,
	})
	if err != nil {
		fmt.Fprintf(stderr, "init telemetry: %v\n", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	a, err := openApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	ctx, finish := escrowotel.StartCommand(ctx, cmd.name)
	start := time.Now()
	err = cmd.run(ctx, a, args[1:], stdout)
	finish(err)
	if *dumpMetrics {
		writeMetrics(stderr)
	}
	if err != nil {
		logger.Info("command failed", "error", err, "duration", time.Since(start))
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	logger.Debug("command completed", "duration", time.Since(start))
	return 0
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func writeMetrics(w io.Writer) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "gather metrics: %v\n", err)
		return
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			fmt.Fprintf(w, "encode metrics: %v\n", err)
			return
		}
	}
}

func usage() string {
	var b strings.Builder
	b.WriteString("escrowctl usage:\n  escrowctl [--config PATH] [--metrics] <command> [options]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %s\n", cmd.summary)
	}
	b.WriteString("\nAddresses are 0x-hex or esc1 bech32. Amounts are base-10 integers in base units.\n")
	return b.String()
}
