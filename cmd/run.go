package main

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	checkpoints "github.com/evdatsion/axf-checkpoints"
	"github.com/evdatsion/axf-checkpoints/db"
	"github.com/evdatsion/axf-checkpoints/log"
	"github.com/evdatsion/axf-checkpoints/metrics"
	"github.com/evdatsion/axf-checkpoints/observer"
	"github.com/evdatsion/axf-checkpoints/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:   "checkpoints",
		Usage:  "Query and audit the compiled-in block checkpoints",
		Flags:  globalFlags(),
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Check a block hash against the checkpoint at its height",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "height", Required: true},
					&cli.StringFlag{Name: "hash", Required: true},
				},
				Action: validateCmd,
			},
			{
				Name:   "estimate",
				Usage:  "Print the total blocks estimate",
				Action: estimateCmd,
			},
			{
				Name:   "status",
				Usage:  "Print tip, verification progress and last checkpoint of the local index",
				Action: statusCmd,
			},
			{
				Name:   "list",
				Usage:  "Print the entries of the local index ordered by height",
				Action: listCmd,
			},
			{
				Name:   "audit",
				Usage:  "Compare a node's block hashes with the checkpoints",
				Action: auditCmd,
			},
			{
				Name:   "index",
				Usage:  "Copy the node's checkpoint blocks into the local index (node needs getblockheader and getchaintxstats, bitcoind 0.15+ RPC)",
				Action: indexCmd,
			},
			{
				Name:  "watch",
				Usage: "Audit and index periodically and serve metrics (node needs getblockheader and getchaintxstats, bitcoind 0.15+ RPC)",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Usage:   "Time between two rounds",
						EnvVars: []string{"CHECKPOINTS_INTERVAL"},
						Value:   10 * time.Minute,
					},
				},
				Action: watchCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "conf-file",
			Usage:   "JSON configuration file, flags override its values",
			EnvVars: []string{"CHECKPOINTS_CONF_FILE"},
		},
		&cli.StringFlag{
			Name:    "net-type",
			Usage:   "Network whose checkpoints are used (mainnet or testnet3)",
			EnvVars: []string{"CHECKPOINTS_NET_TYPE"},
			Value:   "mainnet",
		},
		&cli.BoolFlag{
			Name:    "checkpoints",
			Usage:   "Enforce checkpoints",
			EnvVars: []string{"CHECKPOINTS"},
			Value:   true,
		},
		&cli.IntFlag{
			Name:    "log-level",
			Usage:   "0 trace, 1 debug, 2 info, 3 warn, 4 error",
			EnvVars: []string{"CHECKPOINTS_LOG_LEVEL"},
			Value:   log.InfoLog,
		},
		&cli.StringFlag{
			Name:    "index-db-path",
			Usage:   "Directory or .bin file of the local block index",
			EnvVars: []string{"CHECKPOINTS_INDEX_DB_PATH"},
			Value:   "./",
		},
		&cli.StringFlag{
			Name:    "rpc-address",
			Usage:   "JSON-RPC address of the node to audit",
			EnvVars: []string{"CHECKPOINTS_RPC_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "user",
			EnvVars: []string{"CHECKPOINTS_RPC_USER"},
		},
		&cli.StringFlag{
			Name:    "pwd",
			EnvVars: []string{"CHECKPOINTS_RPC_PWD"},
		},
		&cli.StringFlag{
			Name:    "metrics-address",
			Usage:   "Listen address of the metrics endpoint used by watch",
			EnvVars: []string{"CHECKPOINTS_METRICS_ADDRESS"},
			Value:   ":9090",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Retries of a failed node request",
			Value: 3,
		},
	}
}

var conf = &checkpoints.FileConfig{}

// setup merges the config file with the flags set on the command line.
func setup(c *cli.Context) error {
	if file := c.String("conf-file"); file != "" {
		fc, err := checkpoints.NewFileConfig(file)
		if err != nil {
			return err
		}
		conf = fc
	}
	if c.IsSet("net-type") || conf.NetType == "" {
		conf.NetType = c.String("net-type")
	}
	if c.IsSet("checkpoints") || conf.Checkpoints == nil {
		enabled := c.Bool("checkpoints")
		conf.Checkpoints = &enabled
	}
	if c.IsSet("log-level") || c.String("conf-file") == "" {
		conf.LogLevel = c.Int("log-level")
	}
	if c.IsSet("index-db-path") || conf.IndexDBPath == "" {
		conf.IndexDBPath = c.String("index-db-path")
	}
	if c.IsSet("rpc-address") || conf.RpcAddress == "" {
		conf.RpcAddress = c.String("rpc-address")
	}
	if c.IsSet("user") || conf.User == "" {
		conf.User = c.String("user")
	}
	if c.IsSet("pwd") || conf.Pwd == "" {
		conf.Pwd = c.String("pwd")
	}
	if c.IsSet("metrics-address") || conf.MetricsAddress == "" {
		conf.MetricsAddress = c.String("metrics-address")
	}
	log.InitLog(conf.LogLevel, os.Stdout)
	return nil
}

func newService() (*checkpoints.Service, error) {
	sc, err := conf.ServiceConfig()
	if err != nil {
		return nil, err
	}
	return checkpoints.NewService(sc), nil
}

func newAuditor(c *cli.Context, withIndex bool, m *metrics.Metrics) (*observer.Auditor, func(), error) {
	svc, err := newService()
	if err != nil {
		return nil, nil, err
	}
	var rest *utils.RestCli
	if conf.RpcAddress != "" {
		rest = utils.NewRestCli(conf.RpcAddress, conf.User, conf.Pwd)
	}
	closer := func() {}
	var index *db.IndexDB
	if withIndex {
		if index, err = db.NewIndexDB(conf.IndexDBPath); err != nil {
			return nil, nil, fmt.Errorf("failed to open index db: %v", err)
		}
		closer = func() { index.Close() }
		log.Debugf("[Index] opened %s", index.Path())
	}
	a := observer.NewAuditor(&observer.AuditorConfig{MaxRetries: c.Int("max-retries")}, rest, svc, index, m)
	return a, closer, nil
}

func requireNode() error {
	if conf.RpcAddress == "" {
		return errors.New("rpc-address is required")
	}
	return nil
}

func validateCmd(c *cli.Context) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	hash, err := chainhash.NewHashFromStr(c.String("hash"))
	if err != nil {
		return fmt.Errorf("bad hash: %v", err)
	}
	height, err := parseHeight(c.Int64("height"))
	if err != nil {
		return err
	}
	if err := svc.CheckBlock(height, hash); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func parseHeight(h int64) (int32, error) {
	if h < 0 || h > math.MaxInt32 {
		return 0, fmt.Errorf("height %d out of range [0, %d]", h, math.MaxInt32)
	}
	return int32(h), nil
}

func estimateCmd(c *cli.Context) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	fmt.Println(svc.TotalBlocksEstimate())
	return nil
}

func statusCmd(c *cli.Context) error {
	a, closer, err := newAuditor(c, true, nil)
	if err != nil {
		return err
	}
	defer closer()

	st, err := a.Status()
	if err != nil {
		return err
	}
	if st.Tip != nil {
		fmt.Printf("tip: %s\n", st.Tip)
	} else {
		fmt.Println("tip: none")
	}
	if st.LastCheckpoint != nil {
		fmt.Printf("last checkpoint: %s\n", st.LastCheckpoint)
	} else {
		fmt.Println("last checkpoint: none")
	}
	fmt.Printf("progress: %.6f\n", st.Progress)
	fmt.Printf("total blocks estimate: %d\n", st.TotalBlocks)
	return nil
}

func listCmd(c *cli.Context) error {
	a, closer, err := newAuditor(c, true, nil)
	if err != nil {
		return err
	}
	defer closer()

	es, err := a.Entries()
	if err != nil {
		return err
	}
	for _, e := range es {
		fmt.Printf("%d %s time %d chaintx %d\n", e.Height, e.Hash.String(), e.Timestamp, e.ChainTx)
	}
	return nil
}

func auditCmd(c *cli.Context) error {
	if err := requireNode(); err != nil {
		return err
	}
	a, closer, err := newAuditor(c, false, nil)
	if err != nil {
		return err
	}
	defer closer()

	report, err := a.Audit()
	if err != nil {
		return err
	}
	fmt.Println(report)
	for _, m := range report.Mismatched {
		fmt.Printf("mismatch at %d: node %s, checkpoint %s\n", m.Height, m.Got, m.Want)
	}
	if !report.OK() {
		return cli.Exit("node chain does not match the checkpoints", 2)
	}
	return nil
}

func indexCmd(c *cli.Context) error {
	if err := requireNode(); err != nil {
		return err
	}
	a, closer, err := newAuditor(c, true, nil)
	if err != nil {
		return err
	}
	defer closer()

	n, err := a.IndexCheckpoints()
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d checkpoint blocks\n", n)
	return nil
}

func watchCmd(c *cli.Context) error {
	if err := requireNode(); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, conf.NetType)
	if err != nil {
		return err
	}
	a, closer, err := newAuditor(c, true, m)
	if err != nil {
		return err
	}
	defer closer()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Infof("[Watch] serving metrics on %s", conf.MetricsAddress)
		if err := http.ListenAndServe(conf.MetricsAddress, mux); err != nil {
			log.Errorf("[Watch] metrics server stopped: %v", err)
		}
	}()

	tick := time.NewTicker(c.Duration("interval"))
	defer tick.Stop()
	for {
		if _, err := a.Audit(); err != nil {
			log.Errorf("[Watch] audit failed: %v", err)
		}
		if _, err := a.IndexCheckpoints(); err != nil {
			log.Errorf("[Watch] index failed: %v", err)
		}
		select {
		case <-c.Context.Done():
			return nil
		case <-tick.C:
		}
	}
}
