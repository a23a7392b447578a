package main

const (
	DEFAULT_BATCH_SIZE           = 2
	DEFAULT_MAX_BATCH_BYTES      = 700 * 1024 * 1024 * 1024
	DEFAULT_DOWNLOAD_CONCURRENCY = 4
	DEFAULT_UPLOAD_CONCURRENCY   = 2
	DEFAULT_OPERATION_TIMEOUT    = "15m"
	DEFAULT_PREFIX_GLOB          = "?_aws_mig_*.csv"
	DEFAULT_HEADER_SENTINEL      = "concat('d/',site,'/',owner,'/',store_uid,'/')"

	LIST_PAGE_SIZE      = 1000
	CHECKSUM_CHUNK_SIZE = 8 * 1024

	// bundles are written as BUNDLE_MARKER + <dirname> + BUNDLE_EXTENSION inside the directory they archive
	BUNDLE_MARKER    = "__"
	BUNDLE_EXTENSION = ".zip"
	BUNDLE_GLOB      = BUNDLE_MARKER + "*" + BUNDLE_EXTENSION

	LEDGER_DOWNLOAD_PATHS     = "download_mismatch_paths.txt"
	LEDGER_DOWNLOAD_PREFIXES  = "download_mismatch_prefixes.txt"
	LEDGER_UPLOAD_PATHS       = "upload_mismatch_paths.txt"
	LEDGER_UPLOAD_PREFIXES    = "upload_mismatch_prefixes.txt"
	LEDGER_RECONCILE_PATHS    = "reconcile_mismatch_paths.txt"
	LEDGER_RECONCILE_PREFIXES = "reconcile_mismatch_prefixes.txt"

	BUNDLE_H1_METADATA_KEY = "h1"

	SUPPORTED_CONFIG_VERSIONS = ">=1.0.0 <2.0.0"
)
