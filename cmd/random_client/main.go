package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-randomness-service/api/clients"
	"github.com/ruteri/tee-randomness-service/cmd/flags"
	"github.com/ruteri/tee-randomness-service/interfaces"
	"github.com/ruteri/tee-randomness-service/serviceresolver"
)

var enclaveURLFlag = &cli.StringFlag{
	Name:  "enclave-url",
	Usage: "enclave service base URL, e.g. http://127.0.0.1:3000",
}

var enclaveDomainFlag = &cli.StringFlag{
	Name:  "enclave-domain",
	Usage: "SRV domain to discover the enclave service through, e.g. _enclave._tcp.example.com",
}

var dnsResolverFlag = &cli.StringFlag{
	Name:  "dns-resolver",
	Usage: "DNS resolver address for SRV discovery, defaults to the local stub resolver",
}

var configIDFlag = &cli.StringFlag{
	Name:  "config-id",
	Usage: "enclave config object id. 64-char hex string",
}

var enclaveIDFlag = &cli.StringFlag{
	Name:     "enclave-id",
	Required: true,
	Usage:    "registered enclave object id. 64-char hex string",
}

var recordIDFlag = &cli.StringFlag{
	Name:     "record-id",
	Required: true,
	Usage:    "minted record object id. 64-char hex string",
}

var minFlag = &cli.Uint64Flag{
	Name:  "min",
	Value: 1,
	Usage: "inclusive lower bound of the requested range",
}

var maxFlag = &cli.Uint64Flag{
	Name:  "max",
	Value: 100,
	Usage: "inclusive upper bound of the requested range",
}

var labelFlag = &cli.StringFlag{
	Name:     "label",
	Required: true,
	Usage:    "human-readable config label",
}

var trustAnchorFlag = &cli.StringFlag{
	Name:     "trust-anchor",
	Required: true,
	Usage:    "path to the PEM root certificate attestation chains must terminate in",
}

func main() {
	app := &cli.App{
		Name:  "random_client",
		Usage: "Request attested random numbers and mint proof records",
		Flags: []cli.Flag{
			flags.LedgerAddrFlag,
			flags.AccountFlag,
			enclaveURLFlag,
			enclaveDomainFlag,
			dnsResolverFlag,
		},
		Commands: []*cli.Command{
			{
				Name:        "register",
				Usage:       "register the enclave's attestation with the ledger",
				Description: "Fetches the enclave's current attestation document and submits it for validation against a config. Prints the minted enclave record.",
				Flags:       []cli.Flag{configIDFlag},
				Action:      runRegister,
			},
			{
				Name:        "draw",
				Usage:       "request a signed random number and mint its record",
				Description: "Asks the enclave for a draw in [min, max], submits the signed response to the ledger and prints the minted record.",
				Flags:       []cli.Flag{enclaveIDFlag, minFlag, maxFlag},
				Action:      runDraw,
			},
			{
				Name:   "attestation",
				Usage:  "fetch and print the enclave's attestation document",
				Action: runAttestation,
			},
			{
				Name:  "record",
				Usage: "inspect or destroy minted records",
				Subcommands: []*cli.Command{
					{
						Name:   "get",
						Usage:  "print a minted record",
						Flags:  []cli.Flag{recordIDFlag},
						Action: runRecordGet,
					},
					{
						Name:   "destroy",
						Usage:  "destroy a record you own",
						Flags:  []cli.Flag{recordIDFlag},
						Action: runRecordDestroy,
					},
				},
			},
			{
				Name:  "config",
				Usage: "read or manage enclave configs",
				Subcommands: []*cli.Command{
					{
						Name:   "current",
						Usage:  "print the config new registrations must match",
						Action: runConfigCurrent,
					},
					{
						Name:   "create",
						Usage:  "create a new config (capability holder only)",
						Flags:  []cli.Flag{labelFlag, trustAnchorFlag, flags.PCR0Flag, flags.PCR1Flag, flags.PCR2Flag},
						Action: runConfigCreate,
					},
					{
						Name:   "update-measurements",
						Usage:  "replace a config's expected measurements (capability holder only)",
						Flags:  []cli.Flag{configIDFlag, flags.PCR0Flag, flags.PCR1Flag, flags.PCR2Flag},
						Action: runConfigUpdate,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ledgerClient(cCtx *cli.Context) (*clients.LedgerClient, error) {
	account, err := interfaces.NewAccountAddressFromHex(cCtx.String(flags.AccountFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("could not parse account address: %w", err)
	}
	return clients.NewLedgerClient(cCtx.String(flags.LedgerAddrFlag.Name), account), nil
}

// enclaveClient resolves the enclave service endpoint, either directly from
// enclave-url or through SRV discovery of enclave-domain. When discovery
// yields several candidates the first healthy one wins.
func enclaveClient(cCtx *cli.Context) (*clients.EnclaveClient, error) {
	if baseURL := cCtx.String(enclaveURLFlag.Name); baseURL != "" {
		return clients.NewEnclaveClient(baseURL), nil
	}

	domain := cCtx.String(enclaveDomainFlag.Name)
	if domain == "" {
		return nil, fmt.Errorf("either %s or %s is required", enclaveURLFlag.Name, enclaveDomainFlag.Name)
	}

	endpoints, err := serviceresolver.ResolveServiceEndpoints(cCtx.String(dnsResolverFlag.Name), domain)
	if err != nil {
		return nil, fmt.Errorf("discovering enclave service: %w", err)
	}

	var lastErr error
	for _, endpoint := range endpoints {
		client := clients.NewEnclaveClient("http://" + endpoint.Addr())
		if err := client.HealthCheck(); err != nil {
			lastErr = err
			continue
		}
		return client, nil
	}
	return nil, fmt.Errorf("no healthy enclave endpoint among %d candidates: %w", len(endpoints), lastErr)
}

func runRegister(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}
	enclave, err := enclaveClient(cCtx)
	if err != nil {
		return err
	}

	document, err := enclave.GetAttestation()
	if err != nil {
		return fmt.Errorf("fetching attestation: %w", err)
	}

	configID, err := resolveConfigID(cCtx, ledger)
	if err != nil {
		return err
	}

	record, err := ledger.RegisterEnclave(configID, document)
	if err != nil {
		return fmt.Errorf("registering enclave: %w", err)
	}

	return printJSON(record)
}

// resolveConfigID uses the config-id flag when given and falls back to the
// ledger's current config.
func resolveConfigID(cCtx *cli.Context, ledger *clients.LedgerClient) (interfaces.ObjectID, error) {
	if raw := cCtx.String(configIDFlag.Name); raw != "" {
		id, err := interfaces.NewObjectIDFromHex(raw)
		if err != nil {
			return interfaces.ObjectID{}, fmt.Errorf("could not parse config id: %w", err)
		}
		return id, nil
	}

	cfg, err := ledger.CurrentConfig()
	if err != nil {
		return interfaces.ObjectID{}, fmt.Errorf("fetching current config: %w", err)
	}
	return interfaces.NewObjectIDFromHex(cfg.ConfigID)
}

func runDraw(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}
	enclave, err := enclaveClient(cCtx)
	if err != nil {
		return err
	}

	enclaveID, err := interfaces.NewObjectIDFromHex(cCtx.String(enclaveIDFlag.Name))
	if err != nil {
		return fmt.Errorf("could not parse enclave id: %w", err)
	}

	signed, err := enclave.ProcessData(cCtx.Uint64(minFlag.Name), cCtx.Uint64(maxFlag.Name))
	if err != nil {
		return fmt.Errorf("requesting draw: %w", err)
	}

	record, err := ledger.SubmitSigned(enclaveID, signed)
	if err != nil {
		return fmt.Errorf("submitting draw: %w", err)
	}

	return printJSON(record)
}

func runAttestation(cCtx *cli.Context) error {
	enclave, err := enclaveClient(cCtx)
	if err != nil {
		return err
	}

	document, err := enclave.GetAttestation()
	if err != nil {
		return err
	}

	fmt.Println(interfaces.EncodeHex(document))
	return nil
}

func runRecordGet(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}

	recordID, err := interfaces.NewObjectIDFromHex(cCtx.String(recordIDFlag.Name))
	if err != nil {
		return fmt.Errorf("could not parse record id: %w", err)
	}

	record, err := ledger.GetRecord(recordID)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runRecordDestroy(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}

	recordID, err := interfaces.NewObjectIDFromHex(cCtx.String(recordIDFlag.Name))
	if err != nil {
		return fmt.Errorf("could not parse record id: %w", err)
	}

	if err := ledger.DestroyRecord(recordID); err != nil {
		return err
	}

	fmt.Printf("record %s destroyed\n", recordID)
	return nil
}

func runConfigCurrent(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}

	cfg, err := ledger.CurrentConfig()
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

func runConfigCreate(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}

	anchorPEM, err := os.ReadFile(cCtx.String(trustAnchorFlag.Name))
	if err != nil {
		return fmt.Errorf("reading trust anchor: %w", err)
	}

	measurements, err := measurementsFromFlags(cCtx)
	if err != nil {
		return err
	}

	cfg, err := ledger.CreateConfig(cCtx.String(labelFlag.Name), anchorPEM, measurements)
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

func runConfigUpdate(cCtx *cli.Context) error {
	ledger, err := ledgerClient(cCtx)
	if err != nil {
		return err
	}

	configID, err := resolveConfigID(cCtx, ledger)
	if err != nil {
		return err
	}

	measurements, err := measurementsFromFlags(cCtx)
	if err != nil {
		return err
	}

	cfg, err := ledger.UpdateMeasurements(configID, measurements)
	if err != nil {
		return err
	}
	return printJSON(cfg)
}

func measurementsFromFlags(cCtx *cli.Context) (interfaces.MeasurementSet, error) {
	return interfaces.NewMeasurementSetFromHex(
		cCtx.String(flags.PCR0Flag.Name),
		cCtx.String(flags.PCR1Flag.Name),
		cCtx.String(flags.PCR2Flag.Name),
	)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
