package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bluepipe/bluepipe"
	"github.com/bluepipe/bluepipe/codec"
	"github.com/bluepipe/bluepipe/transport"
)

var (
	agingDuration    time.Duration
	agingCodec       string
	agingConnections int
	agingMTU         int
)

func agingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Run loopback connections under sustained load",
		Long: "Drives one or more in-memory loopback connections with a sine feed " +
			"for the given duration, logging throughput once a second. " +
			"Streaming codecs run an encode/decode chain; voice codecs run a " +
			"duplex echo.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCodec(viper.GetString("aging.codec"))
			if err != nil {
				return err
			}
			return runAging(agingOptions{
				duration:    viper.GetDuration("aging.duration"),
				codec:       id,
				connections: viper.GetInt("aging.connections"),
				mtu:         viper.GetInt("aging.mtu"),
			})
		},
	}

	cmd.Flags().DurationVarP(&agingDuration, "duration", "d", 10*time.Second, "how long to run")
	cmd.Flags().StringVarP(&agingCodec, "codec", "c", "sbc", "codec to exercise (sbc, aac, aptx, ldac, cvsd, msbc)")
	cmd.Flags().IntVarP(&agingConnections, "connections", "n", 1, "number of concurrent connections")
	cmd.Flags().IntVar(&agingMTU, "mtu", 0, "link MTU in bytes (0 selects the codec's default)")

	for _, name := range []string{"duration", "codec", "connections", "mtu"} {
		if err := viper.BindPFlag("aging."+name, cmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	return cmd
}

type agingOptions struct {
	duration    time.Duration
	codec       codec.ID
	connections int
	mtu         int
}

func parseCodec(name string) (codec.ID, error) {
	switch name {
	case "sbc":
		return codec.SBC, nil
	case "aac":
		return codec.AAC, nil
	case "aptx":
		return codec.AptX, nil
	case "ldac":
		return codec.LDAC, nil
	case "cvsd":
		return codec.CVSD, nil
	case "msbc":
		return codec.MSBC, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

func codecDefaults(id codec.ID) (codec.Config, int) {
	switch id {
	case codec.SBC:
		return codec.Config{Codec: id, SampleRate: 44100, Channels: 2, MinBitpool: 2, MaxBitpool: 53}, 459
	case codec.AAC:
		return codec.Config{Codec: id, SampleRate: 44100, Channels: 2, BitRate: 128000}, 459
	case codec.AptX:
		return codec.Config{Codec: id, SampleRate: 44100, Channels: 2}, 459
	case codec.LDAC:
		return codec.Config{Codec: id, SampleRate: 96000, Channels: 2, Quality: codec.LDACQualityHigh}, 679
	case codec.CVSD:
		return codec.Config{Codec: id, SampleRate: 8000, Channels: 1}, 48
	case codec.MSBC:
		return codec.Config{Codec: id, SampleRate: 16000, Channels: 1}, 24
	}
	return codec.Config{}, 0
}

func runAging(opts agingOptions) error {
	cfg, defaultMTU := codecDefaults(opts.codec)
	mtu := opts.mtu
	if mtu == 0 {
		mtu = defaultMTU
	}
	if opts.connections < 1 {
		return fmt.Errorf("connection count must be positive, got %d", opts.connections)
	}

	log := logrus.WithFields(logrus.Fields{
		"codec":       cfg.Codec.String(),
		"mtu":         mtu,
		"connections": opts.connections,
	})
	log.Info("Aging run starting")

	reg := bluepipe.NewRegistry(transport.Hooks{
		Acquire: func(t *transport.Transport) error {
			logrus.WithField("id", t.ID).Debug("Channel acquired")
			return nil
		},
		Release: func(t *transport.Transport) {
			logrus.WithField("id", t.ID).Debug("Channel released")
		},
	})

	var chains []*agingChain
	for i := 0; i < opts.connections; i++ {
		addr := fmt.Sprintf("00:11:22:33:44:%02X", i)
		chain, err := startChain(reg, addr, cfg, mtu)
		if err != nil {
			_ = reg.DestroyAll(5 * time.Second)
			return err
		}
		chains = append(chains, chain)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(opts.duration)

	var last int64
run:
	for {
		select {
		case <-ticker.C:
			var total int64
			for _, c := range chains {
				total += c.received.Load()
			}
			log.WithFields(logrus.Fields{
				"total_bytes": total,
				"rate_bps":    (total - last) * 8,
			}).Info("Aging throughput")
			last = total
		case sig := <-stop:
			log.WithField("signal", sig.String()).Info("Aging run interrupted")
			break run
		case <-deadline:
			break run
		}
	}

	if err := reg.DestroyAll(5 * time.Second); err != nil {
		return fmt.Errorf("aging teardown: %w", err)
	}
	for _, c := range chains {
		c.wait()
	}

	var total int64
	stalled := 0
	for _, c := range chains {
		n := c.received.Load()
		total += n
		if n == 0 {
			stalled++
		}
	}
	log.WithField("total_bytes", total).Info("Aging run finished")
	if stalled > 0 {
		return fmt.Errorf("%d of %d connections moved no audio", stalled, len(chains))
	}
	return nil
}
