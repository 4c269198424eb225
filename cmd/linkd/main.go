// Command linkd is the executable entry point for the peer runtime. It
// wires p2p.State to a concrete refstore.Store, transport.LibP2PEndpoint
// and config.Config, following the urfave/cli/v2 + go-ethereum log
// conventions used for op-node's own cmd/opnode.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/radicle-link/linkd/config"
	"github.com/radicle-link/linkd/p2p"
	"github.com/radicle-link/linkd/p2p/refstore"
	"github.com/radicle-link/linkd/p2p/transport"
	"github.com/radicle-link/linkd/spawner"
	"github.com/radicle-link/linkd/upgrade"
)

// handshakeProtocol is the libp2p protocol ID every linkd stream
// negotiates first via multistream-select; the upgrade package's tag,
// written at the start of each stream, then names that stream's
// sub-protocol, so one connection carries gossip, git, membership and
// interrogation streams alike.
const handshakeProtocol protocol.ID = "/linkd/handshake/1.0.0"

func main() {
	app := &cli.App{
		Name:  "linkd",
		Usage: "peer-to-peer protocol core runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "linkd.yaml", Usage: "path to configuration file"},
			&cli.StringFlag{Name: "data-dir", Value: "./data", Usage: "on-disk storage directory"},
			&cli.IntFlag{Name: "verbosity", Value: 3, Usage: "log verbosity, 0 (silent) to 5 (trace)"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			runCommand,
			peersCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "linkd:", err)
		os.Exit(1)
	}
}

func setupLogging(c *cli.Context) error {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(useColor))
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(c.Int("verbosity")), handler))
	return nil
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start the peer runtime",
	Action: func(c *cli.Context) error {
		logger := log.Root()

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			logger.Warn("using default configuration", "err", err)
			cfg = config.Default()
		}
		upgrade.DefaultTimeout = cfg.UpgradeTimeout

		store, err := refstore.Open(c.String("data-dir"))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		host, err := libp2p.New(libp2p.ListenAddrStrings(cfg.Listen...))
		if err != nil {
			return fmt.Errorf("start libp2p host: %w", err)
		}
		defer host.Close()

		sp := spawner.New()
		defer sp.Close()

		limits := p2p.DefaultStorageLimits(cfg.RateLimits, logger)
		storage := p2p.NewStorage[*refstore.Store](store, limits)

		endpoint := transport.NewLibP2PEndpoint(host, handshakeProtocol, nil)

		state := p2p.New[*refstore.Store](
			host.ID(), endpoint, nil, noopMembership{}, storage,
			discardBus{}, cfg.ToP2P(), sp, cfg.RateLimits.Membership, logger,
		)

		logger.Info("linkd started", "id", state.LocalID, "listen", cfg.Listen)

		<-c.Context.Done()
		return nil
	},
}

var peersCommand = &cli.Command{
	Name:  "peers",
	Usage: "list peers known to a running node's membership view (reference implementation: always empty, since this command does not attach to a running instance)",
	Action: func(c *cli.Context) error {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Peer", "Wants admitted", "Errors admitted"})
		table.Render()
		return nil
	},
}

type noopMembership struct{}

func (noopMembership) Peers() []p2p.PeerId { return nil }

type discardBus struct{}

func (discardBus) Emit(events ...p2p.Event) {}
