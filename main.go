package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blang/semver/v4"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	MODE_MIGRATE   = "migrate"
	MODE_RECONCILE = "reconcile"
)

func main() {
	var configPath string
	var loggerType string
	var logFile string
	var mode string

	flag.StringVar(&configPath, "config-path", "config.yaml", "Path to configuration file")
	flag.StringVar(&loggerType, "logger-type", "development", "Logger type (development or production)")
	flag.StringVar(&logFile, "log-file", "", "Also write logs to this file")
	flag.StringVar(&mode, "mode", MODE_MIGRATE, "What to do (migrate or reconcile)")
	flag.Parse()

	if !StringInSlice(loggerType, []string{"development", "production"}) {
		panic(fmt.Errorf("%s is not a valid logger type", loggerType))
	}
	if !StringInSlice(mode, []string{MODE_MIGRATE, MODE_RECONCILE}) {
		panic(fmt.Errorf("%s is not a valid mode", mode))
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(loggerType, logFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.MetricsListen != "" {
		serveMetrics(config.MetricsListen, sugar)
	}

	source, err := newSourceStore(ctx, config.Source)
	if err != nil {
		sugar.Fatalf("error creating source client: %v", err)
	}
	resolver := selectCredentialResolver(config.Destination.AccessKey, config.Destination.SecretKey, config.Destination.SessionToken, config.Destination.Profile)
	sugar.Infof("using %s for destination credentials", resolver)
	destination, err := NewS3Client(ctx, config.Destination.Region, config.Destination.Endpoint, config.Destination.UsePathStyle, resolver)
	if err != nil {
		sugar.Fatalf("error creating destination client: %v", err)
	}

	pipeline, reconciler := buildComponents(config, source, destination, NewCSVPrefixSource(config.PrefixSource, sugar), sugar)
	if mode == MODE_RECONCILE {
		_, err = reconciler.Run(ctx)
	} else {
		_, err = pipeline.Run(ctx)
	}
	if err != nil {
		sugar.Errorf("%s run stopped: %v", mode, err)
		os.Exit(1)
	}
}

func newLogger(loggerType string, logFile string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if loggerType == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	if logFile != "" {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
		zapConfig.ErrorOutputPaths = append(zapConfig.ErrorOutputPaths, logFile)
	}
	return zapConfig.Build()
}

func newSourceStore(ctx context.Context, config SourceConfiguration) (SourceStore, error) {
	switch config.Type {
	case SOURCE_TYPE_S3:
		resolver := selectCredentialResolver(config.AccessKey, config.SecretKey, config.SessionToken, "")
		return NewS3Client(ctx, config.Region, config.Endpoint, config.UsePathStyle, resolver)
	default:
		return NewBOSClient(config.AccessKey, config.SecretKey, config.Endpoint, config.STSEndpoint)
	}
}

// buildComponents wires the pipeline and the reconciler around the given stores
func buildComponents(config Configuration, source SourceStore, destination DestinationStore, prefixes PrefixSource, sugar *zap.SugaredLogger) (*Pipeline, *Reconciler) {
	runner := operationRunner{timeout: config.OperationTimeout, transientRetries: config.TransientRetries, sugar: sugar}
	staging := NewStagingManager(config.StagingRoot, sugar)
	ledger := NewFailureLedger(config.LedgerDir, sugar)

	uploader := &Uploader{
		destination:  destination,
		bucket:       config.Destination.Bucket,
		keyPrefix:    config.Destination.Prefix,
		storageClass: config.Destination.StorageClass,
		staging:      staging,
		ledger:       ledger,
		runner:       runner,
		sugar:        sugar,
	}
	pipeline := &Pipeline{
		prefixes: prefixes,
		lister: &PrefixLister{
			source:   source,
			bucket:   config.Source.Bucket,
			pageSize: LIST_PAGE_SIZE,
			staging:  staging,
			runner:   runner,
			sugar:    sugar,
		},
		staging: staging,
		downloader: &Downloader{
			source:  source,
			bucket:  config.Source.Bucket,
			staging: staging,
			ledger:  ledger,
			runner:  runner,
			sugar:   sugar,
		},
		bundler:             &Bundler{staging: staging, sugar: sugar},
		uploader:            uploader,
		batchSize:           config.BatchSize,
		maxBatchBytes:       config.MaxBatchBytes,
		downloadConcurrency: config.DownloadConcurrency,
		uploadConcurrency:   config.UploadConcurrency,
		sugar:               sugar,
	}
	reconciler := &Reconciler{
		prefixes: prefixes,
		uploader: uploader,
		ledger:   ledger,
		sugar:    sugar,
	}
	return pipeline, reconciler
}

func LoadConfig(configPath string) (config Configuration, err error) {
	var configRaw configRaw
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configData, &configRaw)
	if err != nil {
		return config, err
	}

	if err := checkConfigVersion(configRaw.ConfigVersion); err != nil {
		return config, err
	}
	if configRaw.StagingRoot == "" {
		return config, fmt.Errorf("staging_root must be set")
	}
	if configRaw.Source.Bucket == "" {
		return config, fmt.Errorf("source.bucket must be set")
	}
	if configRaw.Destination.Bucket == "" {
		return config, fmt.Errorf("destination.bucket must be set")
	}

	var sourceType SourceStorageType
	switch x := strings.ToLower(configRaw.Source.Type); x {
	case "", "bos":
		sourceType = SOURCE_TYPE_BOS
		if configRaw.Source.Endpoint == "" {
			return config, fmt.Errorf("source.endpoint must be set for BOS sources")
		}
	case "s3":
		sourceType = SOURCE_TYPE_S3
	default:
		return config, fmt.Errorf("%s is not a known source type", x)
	}

	storageClass, err := parseStorageClass(configRaw.Destination.StorageClass)
	if err != nil {
		return config, err
	}

	operationTimeout := configRaw.OperationTimeout
	if operationTimeout == "" {
		operationTimeout = DEFAULT_OPERATION_TIMEOUT
	}
	timeout, err := time.ParseDuration(operationTimeout)
	if err != nil {
		return config, fmt.Errorf("operation_timeout %s is not a valid duration: %w", operationTimeout, err)
	}
	if configRaw.TransientRetries < 0 {
		return config, fmt.Errorf("transient_retries must not be negative")
	}

	config = Configuration{
		StagingRoot:         configRaw.StagingRoot,
		LedgerDir:           defaultString(configRaw.LedgerDir, "."),
		BatchSize:           defaultInt(configRaw.BatchSize, DEFAULT_BATCH_SIZE),
		MaxBatchBytes:       DEFAULT_MAX_BATCH_BYTES,
		DownloadConcurrency: defaultInt(configRaw.DownloadConcurrency, DEFAULT_DOWNLOAD_CONCURRENCY),
		UploadConcurrency:   defaultInt(configRaw.UploadConcurrency, DEFAULT_UPLOAD_CONCURRENCY),
		OperationTimeout:    timeout,
		TransientRetries:    configRaw.TransientRetries,
		MetricsListen:       configRaw.MetricsListen,
		PrefixSource: prefixSourceConfig{
			Dir:            defaultString(configRaw.PrefixSource.Dir, "."),
			Glob:           defaultString(configRaw.PrefixSource.Glob, DEFAULT_PREFIX_GLOB),
			HeaderSentinel: defaultString(configRaw.PrefixSource.HeaderSentinel, DEFAULT_HEADER_SENTINEL),
		},
		Source: SourceConfiguration{
			Type:         sourceType,
			sourceConfig: configRaw.Source,
		},
		Destination: DestinationConfiguration{
			StorageClass:      storageClass,
			destinationConfig: configRaw.Destination,
		},
	}
	if configRaw.MaxBatchBytes != nil {
		config.MaxBatchBytes = *configRaw.MaxBatchBytes
	}

	return config, nil
}

func checkConfigVersion(version string) error {
	if version == "" {
		return fmt.Errorf("config_version must be set")
	}
	parsed, err := semver.ParseTolerant(version)
	if err != nil {
		return fmt.Errorf("config_version %s is not a valid version: %w", version, err)
	}
	supported := semver.MustParseRange(SUPPORTED_CONFIG_VERSIONS)
	if !supported(parsed) {
		return fmt.Errorf("config_version %s is not supported (want %s)", version, SUPPORTED_CONFIG_VERSIONS)
	}
	return nil
}

func parseStorageClass(class string) (StorageTier, error) {
	switch strings.ToLower(class) {
	case "", "standard":
		return TIER_STANDARD, nil
	case "infrequent", "standard_ia":
		return TIER_INFREQUENT, nil
	case "cold", "glacier_ir":
		return TIER_COLD, nil
	case "archive", "deep_archive":
		return TIER_ARCHIVE, nil
	default:
		return TIER_STANDARD, fmt.Errorf("%s is not a known storage class", class)
	}
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultInt(value int, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
