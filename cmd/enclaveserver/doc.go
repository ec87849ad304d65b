// Command enclaveserver runs the off-core enclave service that draws random
// numbers and signs them with its ephemeral key. Inside a Nitro enclave it
// attests through the NSM device and listens on vsock; for development it
// runs a local attestation provider with a synthetic certificate chain and
// listens on TCP.
package main
