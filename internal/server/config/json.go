package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/databazaar/internal/flagx"
	"github.com/dmitrijs2005/databazaar/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP  string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC  string         `json:"endpoint_addr_grpc"`
	DatabaseDSN       string         `json:"database_dsn"`
	CatalogBackend    string         `json:"catalog_backend"`
	ChunkBackend      string         `json:"chunk_backend"`
	BoltPath          string         `json:"bolt_path"`
	BadgerDir         string         `json:"badger_dir"`
	SecretKey         string         `json:"secret_key"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	ChunkSize         int            `json:"chunk_size"`
	ChunkTimeout      timex.Duration `json:"chunk_timeout"`
	UploadConcurrency int            `json:"upload_concurrency"`
	ChunkRetries      *int           `json:"chunk_retries"`
	LogLevel          string         `json:"log_level"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays values from the file named by -c / -config onto config.
// Keys missing from the file keep their current value. An unreadable or
// malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.CatalogBackend, c.CatalogBackend)
	setString(&config.ChunkBackend, c.ChunkBackend)
	setString(&config.BoltPath, c.BoltPath)
	setString(&config.BadgerDir, c.BadgerDir)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)

	if c.ChunkSize != 0 {
		config.ChunkSize = c.ChunkSize
	}
	if c.ChunkTimeout.Duration != 0 {
		config.ChunkTimeout = c.ChunkTimeout.Duration
	}
	if c.UploadConcurrency != 0 {
		config.UploadConcurrency = c.UploadConcurrency
	}
	// zero retries is meaningful, so absence is told apart by the pointer
	if c.ChunkRetries != nil {
		config.ChunkRetries = *c.ChunkRetries
	}
}
