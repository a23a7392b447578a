package main

import "time"

type SourceStorageType int

const (
	SOURCE_TYPE_BOS SourceStorageType = iota
	SOURCE_TYPE_S3
)

type prefixSourceConfig struct {
	Dir            string `yaml:"dir"`
	Glob           string `yaml:"glob"`
	HeaderSentinel string `yaml:"header_sentinel"`
}

type sourceConfig struct {
	Type         string `yaml:"type"`
	Bucket       string `yaml:"bucket"`
	Endpoint     string `yaml:"endpoint"`
	STSEndpoint  string `yaml:"sts_endpoint"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type destinationConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	Prefix       string `yaml:"prefix"`
	StorageClass string `yaml:"storage_class"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// type used for the config file
type configRaw struct {
	ConfigVersion       string             `yaml:"config_version"`
	StagingRoot         string             `yaml:"staging_root"`
	LedgerDir           string             `yaml:"ledger_dir"`
	BatchSize           int                `yaml:"batch_size"`
	MaxBatchBytes       *int64             `yaml:"max_batch_bytes"`
	DownloadConcurrency int                `yaml:"download_concurrency"`
	UploadConcurrency   int                `yaml:"upload_concurrency"`
	OperationTimeout    string             `yaml:"operation_timeout"`
	TransientRetries    int                `yaml:"transient_retries"`
	MetricsListen       string             `yaml:"metrics_listen"`
	PrefixSource        prefixSourceConfig `yaml:"prefix_source"`
	Source              sourceConfig       `yaml:"source"`
	Destination         destinationConfig  `yaml:"destination"`
}

type SourceConfiguration struct {
	Type SourceStorageType
	sourceConfig
}

type DestinationConfiguration struct {
	StorageClass StorageTier
	destinationConfig
}

type Configuration struct {
	StagingRoot         string
	LedgerDir           string
	BatchSize           int
	MaxBatchBytes       int64
	DownloadConcurrency int
	UploadConcurrency   int
	OperationTimeout    time.Duration
	TransientRetries    int
	MetricsListen       string
	PrefixSource        prefixSourceConfig
	Source              SourceConfiguration
	Destination         DestinationConfiguration
}
