package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ruteri/tee-randomness-service/cmd/flags"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/enclave"
	"github.com/ruteri/tee-randomness-service/interfaces"
)

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:3000",
	Usage: "TCP address to listen on, ignored when vsock-port is set",
}

var vsockPortFlag = &cli.UintFlag{
	Name:  "vsock-port",
	Usage: "vsock port to listen on inside the enclave, enables the NSM production path",
}

var providerFlag = &cli.StringFlag{
	Name:  "attestation-provider",
	Value: "local",
	Usage: "attestation provider: 'nsm' (inside a Nitro enclave) or 'local' (development)",
}

var seedHexFlag = &cli.StringFlag{
	Name:  "seed-hex",
	Usage: "hex seed for a deterministic development signing key, omit for an ephemeral key",
}

var anchorOutFlag = &cli.StringFlag{
	Name:  "anchor-out",
	Usage: "path to write the local provider's trust anchor PEM, for configuring the ledger",
}

var envFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Value: ".env",
	Usage: "env file loaded before flags are read",
}

var devLogFlag = &cli.BoolFlag{
	Name:  "log-dev",
	Value: false,
	Usage: "use the zap development logger",
}

func main() {
	app := &cli.App{
		Name:  "enclaveserver",
		Usage: "Serve signed random draws from an attested enclave",
		Flags: []cli.Flag{
			listenAddrFlag,
			vsockPortFlag,
			providerFlag,
			seedHexFlag,
			anchorOutFlag,
			envFileFlag,
			devLogFlag,
			flags.PCR0Flag,
			flags.PCR1Flag,
			flags.PCR2Flag,
		},
		Before: func(cCtx *cli.Context) error {
			// Container workflows pass configuration through an env file.
			// A missing file is fine, flags still apply.
			if err := godotenv.Load(cCtx.String(envFileFlag.Name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("loading env file: %w", err)
			}
			return nil
		},
		Action: runEnclave,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runEnclave(cCtx *cli.Context) error {
	logger, err := enclave.NewLogger(cCtx.Bool(devLogFlag.Name))
	if err != nil {
		return err
	}
	defer logger.Sync()

	signer, err := buildSigner(cCtx)
	if err != nil {
		logger.Error("could not create signer", zap.Error(err))
		return err
	}

	provider, err := buildProvider(cCtx, logger)
	if err != nil {
		logger.Error("could not create attestation provider", zap.Error(err))
		return err
	}

	srv, err := enclave.New(enclave.Config{
		ListenAddr: cCtx.String(listenAddrFlag.Name),
		VSockPort:  uint32(cCtx.Uint(vsockPortFlag.Name)),
		Provider:   provider,
		Signer:     signer,
		Log:        logger,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-exit:
		logger.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func buildSigner(cCtx *cli.Context) (*enclave.Signer, error) {
	seedHex := cCtx.String(seedHexFlag.Name)
	if seedHex == "" {
		return enclave.NewSigner()
	}

	seed, err := interfaces.DecodeHex(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed-hex: %w", err)
	}
	return enclave.NewSignerFromSeed(seed)
}

func buildProvider(cCtx *cli.Context, logger *zap.Logger) (cryptoutils.AttestationProvider, error) {
	switch cCtx.String(providerFlag.Name) {
	case "nsm":
		return cryptoutils.NSMAttestationProvider{}, nil

	case "local":
		measurements, err := localMeasurements(cCtx)
		if err != nil {
			return nil, err
		}

		provider, err := cryptoutils.NewLocalAttestationProvider(measurements)
		if err != nil {
			return nil, err
		}

		logger.Info("using local attestation provider",
			zap.String("anchor_fingerprint", provider.TrustAnchor().Fingerprint().String()))

		if out := cCtx.String(anchorOutFlag.Name); out != "" {
			if err := os.WriteFile(out, provider.TrustAnchor().PEM(), 0644); err != nil {
				return nil, fmt.Errorf("writing trust anchor: %w", err)
			}
			logger.Info("wrote trust anchor", zap.String("path", out))
		}

		return provider, nil

	default:
		return nil, fmt.Errorf("unknown attestation provider %q", cCtx.String(providerFlag.Name))
	}
}

// localMeasurements parses the PCR flags for the local provider. With no
// flags set it claims all-zero registers, which is what a debug-mode Nitro
// enclave reports too.
func localMeasurements(cCtx *cli.Context) (interfaces.MeasurementSet, error) {
	pcr0 := cCtx.String(flags.PCR0Flag.Name)
	pcr1 := cCtx.String(flags.PCR1Flag.Name)
	pcr2 := cCtx.String(flags.PCR2Flag.Name)

	if pcr0 == "" && pcr1 == "" && pcr2 == "" {
		return interfaces.MeasurementSet{}, nil
	}

	return interfaces.NewMeasurementSetFromHex(pcr0, pcr1, pcr2)
}
