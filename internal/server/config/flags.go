package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/flagx"
)

var serverFlags = []string{
	"-a", "-ha", "-d", "-cb", "-kb", "-bp", "-bd", "-s",
	"-u", "-p", "-b", "-g", "-e",
	"-cs", "-ct", "-w", "-n", "-l",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a  string   HTTP API bind address (e.g., ":8080")
//	-ha string   gRPC health bind address (e.g., ":50051")
//	-d  string   PostgreSQL DSN
//	-cb string   catalog backend (memory|postgres)
//	-kb string   chunk backend (memory|postgres|s3|bolt|badger)
//	-bp string   bolt database file
//	-bd string   badger database directory
//	-s  string   JWT HMAC secret key
//	-u  string   S3 root user
//	-p  string   S3 root password
//	-b  string   S3 bucket name
//	-g  string   S3 region
//	-e  string   S3 base endpoint
//	-cs int      chunk size, bytes
//	-ct int      chunk timeout, seconds
//	-w  int      upload concurrency
//	-n  int      chunk write retries
//	-l  string   log level
//
// os.Args is filtered with flagx.FilterArgs first, so flags owned by other
// components do not make parsing fail.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run the HTTP API")
	fs.StringVar(&config.EndpointAddrGRPC, "ha", config.EndpointAddrGRPC, "address and port to run the gRPC health service")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CatalogBackend, "cb", config.CatalogBackend, "catalog backend")
	fs.StringVar(&config.ChunkBackend, "kb", config.ChunkBackend, "chunk backend")
	fs.StringVar(&config.BoltPath, "bp", config.BoltPath, "bolt database file")
	fs.StringVar(&config.BadgerDir, "bd", config.BadgerDir, "badger database directory")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.IntVar(&config.ChunkSize, "cs", config.ChunkSize, "chunk size (in bytes)")
	chunkTimeout := fs.Int("ct", int(config.ChunkTimeout.Seconds()), "chunk timeout (in seconds)")
	fs.IntVar(&config.UploadConcurrency, "w", config.UploadConcurrency, "upload concurrency")
	fs.IntVar(&config.ChunkRetries, "n", config.ChunkRetries, "chunk write retries")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.ChunkTimeout = time.Duration(*chunkTimeout) * time.Second
}
