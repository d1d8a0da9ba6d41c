// Command sentineld runs the on-call response engine: it loads
// configuration, wires every pipeline stage and optional integration, and
// serves the webhook ingress until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/client/clientset/versioned"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ondutyhq/sentinel/internal/config"
	"github.com/ondutyhq/sentinel/internal/logging"
	"github.com/ondutyhq/sentinel/pkg/aggregator"
	"github.com/ondutyhq/sentinel/pkg/analysis"
	"github.com/ondutyhq/sentinel/pkg/approval"
	"github.com/ondutyhq/sentinel/pkg/audit"
	"github.com/ondutyhq/sentinel/pkg/autonomy"
	"github.com/ondutyhq/sentinel/pkg/dedup"
	"github.com/ondutyhq/sentinel/pkg/docsadapter"
	"github.com/ondutyhq/sentinel/pkg/executor"
	"github.com/ondutyhq/sentinel/pkg/incidentmgmt"
	"github.com/ondutyhq/sentinel/pkg/ingress"
	"github.com/ondutyhq/sentinel/pkg/integration"
	"github.com/ondutyhq/sentinel/pkg/k8sadapter"
	"github.com/ondutyhq/sentinel/pkg/livelog"
	"github.com/ondutyhq/sentinel/pkg/metricsadapter"
	"github.com/ondutyhq/sentinel/pkg/notification"
	"github.com/ondutyhq/sentinel/pkg/orchestrator"
	"github.com/ondutyhq/sentinel/pkg/riskplanner"
	"github.com/ondutyhq/sentinel/pkg/scmadapter"
	"github.com/ondutyhq/sentinel/pkg/statemachine"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the process configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	o, autonomyStore, err := wireOrchestrator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire orchestrator: %w", err)
	}
	defer func() { _ = autonomyStore.Close() }()

	srv := ingress.NewServer(o, []byte(cfg.Webhook.Auth.Secret), []byte(cfg.Webhook.Auth.Secret), []string{"*"}, logger)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.WebhookPort,
		Handler: srv.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// wireOrchestrator constructs every pipeline collaborator and the optional
// ambient integrations (Slack, PagerDuty, and the three read-only context
// adapters), returning the fully-assembled Orchestrator.
func wireOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*orchestrator.Orchestrator, *config.AutonomyStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	rawAuditStore, err := audit.Open(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := rawAuditStore.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("migrate audit store: %w", err)
	}
	auditStore := audit.NewBufferedStore(rawAuditStore, logger)

	registry := integration.NewRegistry()

	k8sClient, err := buildKubernetesClient(cfg.Kubernetes)
	if err != nil {
		return nil, nil, fmt.Errorf("build kubernetes client: %w", err)
	}
	autonomyStore, err := config.NewAutonomyStore(cfg.AutonomyConfigPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open autonomy store: %w", err)
	}
	k8sAdapter := k8sadapter.NewAdapter(k8sClient, func() bool { return autonomyStore.Get().DestructiveOperationsEnabled })
	if err := registry.Register(k8sAdapter); err != nil {
		return nil, nil, err
	}

	if cfg.MetricsBackend.Address != "" {
		adapter, err := metricsadapter.NewAdapter(cfg.MetricsBackend.Address, cfg.MetricsBackend.Lookback)
		if err != nil {
			logger.Warn("metrics backend adapter disabled", zap.Error(err))
		} else if err := registry.Register(adapter); err != nil {
			return nil, nil, err
		}
	}

	if cfg.SourceControl.Token != "" {
		resolver := func(service string) (string, string, bool) { return "", "", false } // operator-supplied mapping, none by default
		adapter := scmadapter.NewAdapter(cfg.SourceControl.Token, resolver, cfg.SourceControl.Lookback)
		if err := registry.Register(adapter); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Docs.RunbooksPath != "" {
		adapter, err := docsadapter.NewAdapterFromFile(cfg.Docs.RunbooksPath)
		if err != nil {
			logger.Warn("docs adapter disabled", zap.Error(err))
		} else if err := registry.Register(adapter); err != nil {
			return nil, nil, err
		}
	}

	agg := aggregator.NewAggregator(registry, logger)

	model, err := buildModel(cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("build model: %w", err)
	}
	engine := analysis.NewEngine(model, cfg.Model.Timeout, logger)

	policy, err := riskplanner.NewPolicy(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("compile risk policy: %w", err)
	}
	planner := riskplanner.NewPlanner(policy, false)

	gate := autonomy.NewGate()
	verifier := executor.NewVerifier(k8sClient)
	exec := executor.NewExecutor(registry, verifier, auditStore, logger)
	machine := statemachine.NewMachine()
	approvals := approval.NewQueue(rdb)
	live := livelog.NewBroadcaster(rdb, logger)
	dedupChecker := dedup.NewChecker(rdb, time.Duration(cfg.Dedup.WindowSeconds)*time.Second)

	o := orchestrator.New(dedupChecker, agg, engine, planner, gate, exec, machine, approvals, live, autonomyStore, logger)

	if cfg.Slack.Channel != "" {
		o = o.WithNotifier(notification.NewNotifierWithClient(slack.New(cfg.Slack.Token), cfg.Slack.Channel, logger))
	}
	if cfg.IncidentManagement.APIKey != "" {
		o = o.WithIncidentMgmt(incidentmgmt.NewClient(cfg.IncidentManagement.APIKey, cfg.IncidentManagement.UserEmail))
	}

	return o, autonomyStore, nil
}

func buildModel(cfg config.ModelConfig) (analysis.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return analysis.NewAnthropicModel(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case "bedrock":
		return analysis.NewBedrockModel(context.Background(), cfg.Model, cfg.MaxTokens)
	case "langchain":
		return analysis.NewLangchainModel(cfg.APIKey, cfg.Model, cfg.Endpoint, cfg.MaxTokens, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

// buildKubernetesClient loads an in-cluster config when running as a pod,
// falling back to the kubeconfig path (or the default loading rules when
// unset) for local/dev use.
func buildKubernetesClient(cfg config.KubernetesConfig) (*k8sadapter.Client, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if cfg.KubeconfigPath != "" {
			loadingRules.ExplicitPath = cfg.KubeconfigPath
		}
		overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}

	// Declared as the interface type directly: metrics-server is optional,
	// and assigning a nil *versioned.Clientset through the interface param
	// below would produce a non-nil interface holding a nil pointer, which
	// Client's "c.metrics == nil" check (TopPods) would never catch.
	var metricsClient metricsv1beta1.Interface
	if mc, err := metricsv1beta1.NewForConfig(restCfg); err == nil {
		metricsClient = mc
	}

	return k8sadapter.NewClient(clientset, metricsClient, cfg), nil
}
