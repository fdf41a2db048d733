package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"acp-node/api/rest/handlers"
	"acp-node/api/rest/routes"
	"acp-node/config"
	"acp-node/core/agent"
	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/fare"
	"acp-node/core/job"
	"acp-node/core/monitoring"
	"acp-node/core/scheduler"
	"acp-node/core/x402"
	"acp-node/logger"
	"acp-node/providers/backend"
	"acp-node/providers/evm"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Format: cfg.LogFormat})
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server exited")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	signer, err := evm.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	wallet := signer.Address()
	if cfg.WalletAddress != "" {
		wallet = common.HexToAddress(cfg.WalletAddress)
	}

	contracts, err := contract.NewClient(contract.Version(cfg.Contracts.Version), contract.Addresses{
		ACP:            common.HexToAddress(cfg.Contracts.ACP),
		JobManager:     addressOrZero(cfg.Contracts.JobManager),
		MemoManager:    addressOrZero(cfg.Contracts.MemoManager),
		PaymentManager: addressOrZero(cfg.Contracts.PaymentManager),
	})
	if err != nil {
		return err
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	// Home chain
	homeID := cfg.Home.ChainID
	homeEth, err := evm.Dial(ctx, cfg.Home.RPCURL)
	if err != nil {
		return err
	}
	defer homeEth.Close()
	reader := evm.NewReader(homeID, homeEth, contracts)
	homeDriver, closeHome, err := walletDriver(ctx, cfg.Home, wallet)
	if err != nil {
		return err
	}
	defer closeHome()

	disp := dispatcher.New(dispatcher.Config{
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		PollInterval:    cfg.PollInterval,
		PollMultiplier:  cfg.PollMultiplier,
		PollMaxInterval: cfg.PollMaxInterval,
		PollAttempts:    cfg.PollAttempts,
		Optimistic:      cfg.Optimistic,
	}, contracts, homeDriver, log, dispatcher.WithRecorder(metrics))

	// Foreign chains
	foreignPaymentManagers := make(map[uint64]common.Address)
	for _, chain := range cfg.Chains {
		eth, err := evm.Dial(ctx, chain.RPCURL)
		if err != nil {
			return err
		}
		defer eth.Close()
		reader.AddChain(chain.ChainID, eth)

		driver, closeDriver, err := walletDriver(ctx, chain, wallet)
		if err != nil {
			return err
		}
		defer closeDriver()
		disp.AddChain(driver)

		if chain.PaymentManager != "" {
			foreignPaymentManagers[chain.ChainID] = common.HexToAddress(chain.PaymentManager)
		}
		log.Info("chain configured", "chain_id", chain.ChainID)
	}

	fares := fare.NewResolver(fare.NewFare(common.HexToAddress(cfg.BaseFareAddress), cfg.BaseFareDecimals), homeID, reader)

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:           cfg.BackendURL,
		RequestsPerSecond: cfg.BackendRPS,
		Burst:             cfg.BackendBurst,
	}, nil)
	if err != nil {
		return err
	}

	var budget job.BudgetPayer
	if cfg.X402URL != "" {
		facilitator := x402.NewFacilitator(cfg.X402URL, &http.Client{Timeout: 30 * time.Second})
		budget = x402.NewController(facilitator, signer, backendClient, reader, disp, contracts, homeID, log,
			x402.WithPollRecorder(metrics))
	}

	client := agent.NewClient(contracts, disp, fares, backendClient, reader, wallet, agent.Options{
		Allowances:             reader,
		Budget:                 budget,
		ForeignPaymentManagers: foreignPaymentManagers,
		Logger:                 log,
	})

	policy := &agent.Policy{
		Wallet:         wallet,
		AcceptRequests: cfg.AcceptRequests,
		AutoPay:        cfg.AutoPay,
		AutoEvaluate:   cfg.AutoEvaluate,
		Logger:         log,
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(client, policy, cfg.Workers, log, scheduler.WithRecorder(metrics))
	go sched.Start(ctx)
	defer sched.Stop()

	r := mux.NewRouter()
	routes.SetupRoutes(r, handlers.NewEventHandler(sched, log), handlers.NewJobHandler(client, fares.BaseFare()), reg)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.ServerPort, "wallet", wallet.Hex(), "chain_id", homeID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// walletDriver dials the wallet endpoint of chain and its node for finality reads
func walletDriver(ctx context.Context, chain config.ChainConfig, wallet common.Address) (*evm.WalletDriver, func(), error) {
	node, err := evm.DialRPC(ctx, chain.RPCURL)
	if err != nil {
		return nil, nil, err
	}
	walletRPC := node
	if chain.WalletRPCURL != "" && chain.WalletRPCURL != chain.RPCURL {
		walletRPC, err = evm.DialRPC(ctx, chain.WalletRPCURL)
		if err != nil {
			node.Close()
			return nil, nil, err
		}
	}
	closeAll := func() {
		if walletRPC != node {
			walletRPC.Close()
		}
		node.Close()
	}
	return evm.NewWalletDriver(chain.ChainID, wallet, walletRPC, node), closeAll, nil
}

func addressOrZero(hex string) common.Address {
	if hex == "" {
		return common.Address{}
	}
	return common.HexToAddress(hex)
}
