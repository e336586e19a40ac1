package config

const (
	CollectModeIncremental = "incremental"
	CollectModeFull        = "full"
)

const (
	defaultConfigPath             = "~/.config/discback/config.toml"
	defaultWorkingDir             = "~/.local/share/discback/work"
	defaultLogDir                 = "~/.local/share/discback/logs"
	defaultDigestDir              = "~/.local/share/discback/digests"
	defaultLockPath               = "~/.local/share/discback/discback.lock"
	defaultCatalogPath            = "~/.local/share/discback/catalog.db"
	defaultIgnoreFile             = ".cbignore"
	defaultMkisofsBinary          = "mkisofs"
	defaultCdrecordBinary         = "cdrecord"
	defaultApplicationID          = "discback"
	defaultMediaType              = "cdrw-74"
	defaultDevice                 = "/dev/cdrw"
	defaultCapacityPercent        = 100
	defaultStoreStrategy          = "worst"
	defaultSpanStrategy           = "worst"
	defaultSpanCushionPercent     = 3
	defaultEstimateTimeoutSeconds = 300
	defaultWriteTimeoutSeconds    = 3600
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultUploadRegion           = "us-east-1"
	defaultNotifyTimeoutSeconds   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkingDir: defaultWorkingDir,
			LogDir:     defaultLogDir,
			DigestDir:  defaultDigestDir,
			LockPath:   defaultLockPath,
		},
		Collect: Collect{
			Mode:       CollectModeIncremental,
			IgnoreFile: defaultIgnoreFile,
		},
		Image: Image{
			MkisofsBinary:          defaultMkisofsBinary,
			RockRidge:              true,
			ApplicationID:          defaultApplicationID,
			EstimateTimeoutSeconds: defaultEstimateTimeoutSeconds,
			WriteTimeoutSeconds:    defaultWriteTimeoutSeconds,
		},
		Store: Store{
			MediaType:       defaultMediaType,
			Device:          defaultDevice,
			CdrecordBinary:  defaultCdrecordBinary,
			CapacityPercent: defaultCapacityPercent,
			Strategy:        defaultStoreStrategy,
			Prune:           true,
		},
		Span: Span{
			Strategy:       defaultSpanStrategy,
			CushionPercent: defaultSpanCushionPercent,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Upload: Upload{
			Region: defaultUploadRegion,
		},
		Notify: Notify{
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Catalog: Catalog{
			Path: defaultCatalogPath,
		},
	}
}
