package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"teamlink/domain"
	"teamlink/observability"
	"teamlink/relay"
	"teamlink/sink"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config drives the in-process relay scenario: one host, N peers on
// loopback, M actions per peer, then a delivery audit.
type Config struct {
	Peers           int           `envconfig:"TESTER_PEERS" default:"3"`
	MessagesPerPeer int           `envconfig:"TESTER_MESSAGES" default:"5"`
	SettleTime      time.Duration `envconfig:"TESTER_SETTLE_TIME" default:"500ms"`
	TickInterval    time.Duration `envconfig:"TESTER_TICK_INTERVAL" default:"20ms"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"WARN"`
}

type participant struct {
	name     string
	team     domain.TeamTag
	core     *relay.Core
	timeline *sink.Timeline
	sent     int
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tester terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 1. Host on an ephemeral loopback port.
	host := &participant{name: "host", timeline: sink.NewTimeline("host")}
	host.core = relay.NewCore(logger, relay.Options{
		Role: domain.RoleHost,
		Port: 0,
	}, observability.NewRelayMonitor())
	if err := host.core.Start(); err != nil {
		return exitRuntime, err
	}
	defer host.core.Stop()
	host.core.Subscribe(host.timeline)

	port := host.core.Addr().(*net.TCPAddr).Port

	// 2. Peers, one team each.
	peers := make([]*participant, 0, config.Peers)
	for i := 1; i <= config.Peers; i++ {
		p := &participant{
			name: fmt.Sprintf("peer-%d", i),
			team: domain.TeamTag(fmt.Sprintf("Team-%d", i)),
		}
		p.timeline = sink.NewTimeline(p.name)
		p.core = relay.NewCore(logger, relay.Options{
			Role:        domain.RolePeer,
			Port:        port,
			HostAddress: "127.0.0.1",
			Team:        p.team,
		}, observability.NewRelayMonitor())
		if err := p.core.Start(); err != nil {
			return exitRuntime, fmt.Errorf("%s: %w", p.name, err)
		}
		defer p.core.Stop()
		p.core.Subscribe(p.timeline)
		peers = append(peers, p)
	}

	// 3. Drive every dispatcher from one scenario ticker, the same way a
	// frame loop would.
	tickerDone := make(chan struct{})
	ticker := time.NewTicker(config.TickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-tickerDone:
				return
			case <-ticker.C:
				host.core.DispatchPending()
				for _, p := range peers {
					p.core.DispatchPending()
				}
			}
		}
	}()

	// 4. Fire the actions.
	for j := 1; j <= config.MessagesPerPeer; j++ {
		for _, p := range peers {
			payload := fmt.Sprintf("action:%d", j)
			if err := p.core.Send(payload); err != nil {
				return exitRuntime, fmt.Errorf("%s send: %w", p.name, err)
			}
			p.sent++
		}
	}

	time.Sleep(config.SettleTime)
	close(tickerDone)

	// 5. Audit: every peer must hold exactly (Peers-1)*MessagesPerPeer
	// relayed frames and none of its own echoes; the host must have seen
	// every raw frame through its queue.
	failures := report(config, host, peers)
	if failures > 0 {
		color.Red.Printf("FAIL: %d participant(s) with delivery mismatch\n", failures)
		return exitRuntime, nil
	}
	color.Green.Println("OK: all frames delivered exactly once, no self echoes")
	return exitOK, nil
}

func report(config Config, host *participant, peers []*participant) int {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Participant", "Team", "Sent", "Received", "Expected", "Own echoes", "Status"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	failures := 0
	for _, p := range peers {
		received := p.timeline.Payloads()
		expected := (config.Peers - 1) * config.MessagesPerPeer
		ownPrefix := fmt.Sprintf("[%s]", p.team)
		echoes := lo.CountBy(received, func(payload string) bool {
			return strings.HasPrefix(payload, ownPrefix)
		})

		status := "OK"
		if len(received) != expected || echoes != 0 {
			status = "FAIL"
			failures++
		}
		table.Append([]string{
			p.name, string(p.team),
			fmt.Sprintf("%d", p.sent),
			fmt.Sprintf("%d", len(received)),
			fmt.Sprintf("%d", expected),
			fmt.Sprintf("%d", echoes),
			status,
		})
	}

	hostExpected := config.Peers * config.MessagesPerPeer
	hostReceived := len(host.timeline.Messages())
	hostStatus := "OK"
	if hostReceived != hostExpected {
		hostStatus = "FAIL"
		failures++
	}
	table.Append([]string{
		"host", "-", "0",
		fmt.Sprintf("%d", hostReceived),
		fmt.Sprintf("%d", hostExpected),
		"0", hostStatus,
	})

	table.Render()
	return failures
}
