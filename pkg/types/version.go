package types

// Version is the arcstore release. It is written into the creator block of
// every transaction log produced during migration.
const Version = "0.3.0"

// ToolName identifies the client that owns the data in creator blocks.
const ToolName = "Advanced REST client"
