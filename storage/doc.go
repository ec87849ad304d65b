// Package storage provides the content-addressed archive for minted records
// and enclave config snapshots, with pluggable backends.
//
// The ledger itself is the source of truth; the archive keeps durable,
// independently verifiable copies of what was minted. Content is addressed
// by the SHA-256 hash of its canonical JSON rendering, so any reader can
// check an archived record against its identifier without trusting the
// archive operator.
//
// # Storage URI Format
//
// Archive backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/randomness/archive/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://ipfs.example.com:5001/
//   - vault://token@vault.example.com:8200/secret/randomness
//
// # Content Addressing
//
// The content identifier is the SHA-256 hash of the data. Different content
// types (configs and records) are stored in separate namespaces.
//
// # Multi-Backend Replication
//
// MultiStorageBackend aggregates several backends: writes replicate to every
// available backend, reads are served by the first backend that has the
// content. A write succeeds if at least one backend accepted it.
//
// Backends are created from URIs through StorageBackendFactory:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	archive, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
//	    "file:///var/lib/randomness/archive/",
//	    "s3://randomness-archive/records/?region=us-east-1",
//	})
package storage
