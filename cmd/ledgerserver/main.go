package main

import (
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-randomness-service/cmd/flags"
	"github.com/ruteri/tee-randomness-service/cryptoutils"
	"github.com/ruteri/tee-randomness-service/httpserver"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/ledger"
	"github.com/ruteri/tee-randomness-service/randomness"
	"github.com/ruteri/tee-randomness-service/registry"
	"github.com/ruteri/tee-randomness-service/storage"
)

var adminAccountFlag = &cli.StringFlag{
	Name:     "admin-account",
	Required: true,
	Usage:    "account that receives the module capability. 40-char hex string",
}

var configLabelFlag = &cli.StringFlag{
	Name:  "config-label",
	Value: "randomness-enclave",
	Usage: "label for the initial enclave config",
}

var trustAnchorFlag = &cli.StringFlag{
	Name:  "trust-anchor",
	Usage: "path to the PEM root certificate attestation chains must terminate in",
}

var archiveURIFlag = &cli.StringSliceFlag{
	Name:  "archive-uri",
	Usage: "archive backend URIs (file://, s3://, ipfs://, vault://), records are replicated to all of them",
}

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	adminAccountFlag,
	configLabelFlag,
	trustAnchorFlag,
	flags.PCR0Flag,
	flags.PCR1Flag,
	flags.PCR2Flag,
	archiveURIFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "ledgerserver",
		Usage: "Serve the attested randomness ledger API",
		Flags: serverFlags,
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	admin, err := interfaces.NewAccountAddressFromHex(cCtx.String(adminAccountFlag.Name))
	if err != nil {
		logger.Error("Invalid admin account", "err", err)
		return err
	}

	led := ledger.New()
	moduleCap, dir, err := registry.InstallModule(led, admin)
	if err != nil {
		logger.Error("Module install failed", "err", err)
		return err
	}
	logger.Info("Enclave module installed",
		"capabilityId", moduleCap.ObjectID().String(),
		"directoryId", dir.ObjectID().String(),
		"admin", admin.String())

	if err := createInitialConfig(cCtx, led, dir.ObjectID(), moduleCap.ObjectID(), admin, logger); err != nil {
		return err
	}

	archive, err := setupArchive(cCtx, logger)
	if err != nil {
		return err
	}

	handler := httpserver.NewHandler(led, &cryptoutils.DocumentValidator{}, dir.ObjectID(), archive, logger)
	adminHandler := httpserver.NewAdminHandler(led, dir.ObjectID(), moduleCap.ObjectID(), logger)

	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	srv, err := httpserver.New(cfg, handler, adminHandler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// createInitialConfig creates the first enclave config when the trust anchor
// and all three measurements are given. Without them the server starts with
// no config and the capability holder creates one through the admin API.
func createInitialConfig(cCtx *cli.Context, led *ledger.Ledger, dirID, capID interfaces.ObjectID, admin interfaces.AccountAddress, logger *slog.Logger) error {
	anchorPath := cCtx.String(trustAnchorFlag.Name)
	pcr0 := cCtx.String(flags.PCR0Flag.Name)
	pcr1 := cCtx.String(flags.PCR1Flag.Name)
	pcr2 := cCtx.String(flags.PCR2Flag.Name)

	if anchorPath == "" && pcr0 == "" && pcr1 == "" && pcr2 == "" {
		logger.Info("No initial config flags given, starting without an enclave config")
		return nil
	}
	if anchorPath == "" || pcr0 == "" || pcr1 == "" || pcr2 == "" {
		err := errors.New("initial config needs trust-anchor, pcr0, pcr1 and pcr2")
		logger.Error("Incomplete initial config flags", "err", err)
		return err
	}

	anchorPEM, err := os.ReadFile(anchorPath)
	if err != nil {
		logger.Error("Could not read trust anchor", "err", err, "path", anchorPath)
		return err
	}
	anchor, err := cryptoutils.NewTrustAnchorFromPEM(anchorPEM)
	if err != nil {
		logger.Error("Invalid trust anchor certificate", "err", err)
		return err
	}

	measurements, err := interfaces.NewMeasurementSetFromHex(pcr0, pcr1, pcr2)
	if err != nil {
		logger.Error("Invalid measurement flags", "err", err)
		return err
	}

	cfg, err := registry.CreateConfig[randomness.RandomResponse](led, dirID, capID, admin,
		cCtx.String(configLabelFlag.Name), anchor, measurements)
	if err != nil {
		logger.Error("Initial config creation failed", "err", err)
		return err
	}

	logger.Info("Initial enclave config created",
		"configId", cfg.ObjectID().String(),
		"label", cfg.Label,
		"anchorFingerprint", cfg.Anchor.Fingerprint().String())
	return nil
}

// setupArchive builds the replicated record archive from the archive-uri
// flags. No URIs means no archive; minted records then live only on the
// ledger.
func setupArchive(cCtx *cli.Context, logger *slog.Logger) (interfaces.StorageBackend, error) {
	uris := cCtx.StringSlice(archiveURIFlag.Name)
	if len(uris) == 0 {
		return nil, nil
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		locations = append(locations, interfaces.StorageBackendLocation(uri))
	}

	factory := storage.NewStorageBackendFactory(logger)
	archive, err := factory.CreateMultiBackend(locations)
	if err != nil {
		logger.Error("Could not create record archive", "err", err)
		return nil, err
	}

	logger.Info("Record archive configured", "backends", archive.Name())
	return archive, nil
}
