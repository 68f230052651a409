// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"golang.org/x/sync/errgroup"

	"ambry.io/ambry/internal/errs2"
	"ambry.io/ambry/pkg/account"
	"ambry.io/ambry/pkg/clustermap"
	"ambry.io/ambry/pkg/frontend"
	"ambry.io/ambry/pkg/process"
	"ambry.io/ambry/pkg/replicanet"
	"ambry.io/ambry/pkg/restserver"
	"ambry.io/ambry/pkg/router"
)

var (
	rootCmd = &cobra.Command{
		Use:   "ambry-frontend",
		Short: "Ambry blob store frontend",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the frontend server",
		RunE:  cmdRun,
	}

	runCfg struct {
		serverAddr      string
		shutdownTimeout time.Duration
		responseWorkers int
		responseQueue   int

		clusterMapPath string
		datacenter     string

		accountsDB      string
		accountsRefresh time.Duration

		routerHostname    string
		deleteParallelism int
		deleteSuccess     int
		getParallelism    int
		getSuccess        int
		putParallelism    int
		putSuccess        int
		requestTimeout    time.Duration
		operationTimeout  time.Duration
		pollInterval      time.Duration
		maxBlobSize       int64

		cacheValidity time.Duration

		netRequestTimeout time.Duration
	}
)

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVar(&runCfg.serverAddr, "server.addr", ":1174", "address to listen on for blob traffic")
	flags.DurationVar(&runCfg.shutdownTimeout, "server.shutdown-timeout", 30*time.Second, "grace period for draining requests on shutdown")
	flags.IntVar(&runCfg.responseWorkers, "server.response-workers", 8, "goroutines streaming response bodies")
	flags.IntVar(&runCfg.responseQueue, "server.response-queue", 1024, "pending response capacity")

	flags.StringVar(&runCfg.clusterMapPath, "clustermap.path", "", "path of the cluster layout JSON")
	flags.StringVar(&runCfg.datacenter, "clustermap.datacenter", "", "expected local datacenter, verified against the layout")

	flags.StringVar(&runCfg.accountsDB, "accounts.db", "accounts.db", "path of the account database")
	flags.DurationVar(&runCfg.accountsRefresh, "accounts.refresh-interval", 0, "how often to reload the account directory, 0 disables")

	flags.StringVar(&runCfg.routerHostname, "router.hostname", "", "client id sent to datanodes, defaults to the host name")
	flags.IntVar(&runCfg.deleteParallelism, "router.delete.parallelism", 3, "replicas a delete contacts at once")
	flags.IntVar(&runCfg.deleteSuccess, "router.delete.success-target", 2, "replica successes a delete needs")
	flags.IntVar(&runCfg.getParallelism, "router.get.parallelism", 2, "replicas a get contacts at once")
	flags.IntVar(&runCfg.getSuccess, "router.get.success-target", 1, "replica successes a get needs")
	flags.IntVar(&runCfg.putParallelism, "router.put.parallelism", 3, "replicas a put contacts at once")
	flags.IntVar(&runCfg.putSuccess, "router.put.success-target", 2, "replica successes a put needs")
	flags.DurationVar(&runCfg.requestTimeout, "router.request-timeout", 2*time.Second, "deadline for a single replica request")
	flags.DurationVar(&runCfg.operationTimeout, "router.operation-timeout", 15*time.Second, "deadline for a whole blob operation")
	flags.DurationVar(&runCfg.pollInterval, "router.poll-interval", 10*time.Millisecond, "transport poll wait per driver tick")
	flags.Int64Var(&runCfg.maxBlobSize, "router.max-blob-size", 4<<20, "largest accepted blob in bytes")

	flags.DurationVar(&runCfg.cacheValidity, "frontend.cache-validity", 365*24*time.Hour, "how long proxies may cache public blobs")

	flags.DurationVar(&runCfg.netRequestTimeout, "replicanet.request-timeout", 5*time.Second, "network deadline per datanode call")
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx()
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := process.InitDebug(log.Named("debug"), monkit.Default); err != nil {
		return err
	}

	if runCfg.clusterMapPath == "" {
		return errs.New("clustermap.path is required")
	}
	cmap, err := clustermap.NewFromFile(log.Named("clustermap"), runCfg.clusterMapPath)
	if err != nil {
		return err
	}
	if runCfg.datacenter != "" && runCfg.datacenter != cmap.Datacenter() {
		return errs.New("cluster map describes datacenter %q, expected %q", cmap.Datacenter(), runCfg.datacenter)
	}

	store, err := account.OpenStore(log.Named("accounts"), runCfg.accountsDB)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	accounts, err := account.NewService(log.Named("accounts"), store, runCfg.accountsRefresh)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, accounts.Close()) }()

	transport := replicanet.NewDialer(log.Named("replicanet"), replicanet.Config{
		RequestTimeout: runCfg.netRequestTimeout,
	})
	defer func() { err = errs.Combine(err, transport.Close()) }()

	blobRouter := router.New(log.Named("router"), router.Config{
		Hostname:         runCfg.routerHostname,
		Delete:           router.OperationConfig{Parallelism: runCfg.deleteParallelism, SuccessTarget: runCfg.deleteSuccess},
		Get:              router.OperationConfig{Parallelism: runCfg.getParallelism, SuccessTarget: runCfg.getSuccess},
		Put:              router.OperationConfig{Parallelism: runCfg.putParallelism, SuccessTarget: runCfg.putSuccess},
		RequestTimeout:   runCfg.requestTimeout,
		OperationTimeout: runCfg.operationTimeout,
		PollInterval:     runCfg.pollInterval,
		MaxBlobSize:      runCfg.maxBlobSize,
	}, cmap, transport, nil)
	defer func() { err = errs.Combine(err, blobRouter.Close()) }()

	responses := restserver.NewAsyncResponseHandler(log.Named("responses"), runCfg.responseWorkers, runCfg.responseQueue)
	if err := responses.Start(); err != nil {
		return err
	}
	defer responses.Shutdown()

	pipeline := frontend.New(log.Named("frontend"), frontend.Config{CacheValidity: runCfg.cacheValidity},
		blobRouter, accounts, cmap, nil, nil, responses)
	if err := pipeline.Start(); err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, pipeline.Shutdown()) }()

	server, err := restserver.New(log.Named("server"), restserver.Config{
		Addr:            runCfg.serverAddr,
		ShutdownTimeout: runCfg.shutdownTimeout,
	}, pipeline)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return errs2.IgnoreCanceled(accounts.Run(groupCtx))
	})
	group.Go(func() error {
		return errs2.IgnoreCanceled(server.Run(groupCtx))
	})
	return group.Wait()
}

func main() {
	process.Exec(rootCmd)
}
