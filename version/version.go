package version

// Version is populated by the build system.
//nolint:gochecknoglobals
var Version = "development"

const Name = "sheets-replicator"
const EnvPrefix = "REPLICATOR"
const Description = "Google Sheets Data Replicator"
