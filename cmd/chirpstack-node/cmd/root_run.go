package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/backend/transport"
	"github.com/brocaar/chirpstack-node/internal/backend/transport/mqtt"
	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/crypto"
	"github.com/brocaar/chirpstack-node/internal/monitoring"
	"github.com/brocaar/chirpstack-node/internal/node"
	"github.com/brocaar/chirpstack-node/internal/storage"
)

func run(cmd *cobra.Command, args []string) error {
	var n *node.Node

	tasks := []func() error{
		setLogLevel,
		setSyslog,
		printStartMessage,
		setupMonitoring,
		setupStorage,
		setTransportBackend,
		startNode(&n),
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	exitChan := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	go func() {
		log.Warning("stopping chirpstack-node")
		if err := n.Stop(); err != nil {
			log.Fatal(err)
		}
		if err := storage.Close(); err != nil {
			log.Fatal(err)
		}
		exitChan <- struct{}{}
	}()
	select {
	case <-exitChan:
	case s := <-sigChan:
		log.WithField("signal", s).Info("signal received, stopping immediately")
	}

	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version":  version,
		"dev_addr": config.C.Node.DevAddr,
	}).Info("starting ChirpStack Node")
	return nil
}

func setupMonitoring() error {
	if err := storage.SetTimeLocation(config.C.Metrics.Timezone); err != nil {
		return errors.Wrap(err, "set time location error")
	}

	if err := monitoring.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup monitoring error")
	}

	return nil
}

func setupStorage() error {
	if err := storage.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup storage error")
	}
	return nil
}

func setTransportBackend() error {
	b, err := mqtt.NewBackend(config.C.Node.DevAddr, config.C)
	if err != nil {
		return errors.Wrap(err, "new mqtt transport backend error")
	}
	transport.SetBackend(b)
	return nil
}

func startNode(n **node.Node) func() error {
	return func() error {
		*n = node.New(config.C, transport.Backend(), crypto.NewLoRaWANCipher(), crypto.NewLoRaWANMIC())
		if err := (*n).Start(); err != nil {
			return errors.Wrap(err, "start node error")
		}
		return nil
	}
}
