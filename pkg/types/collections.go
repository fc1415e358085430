package types

// Collection names. They are part of the persisted layout.
const (
	CollectionHeaders       = "headers"
	CollectionStatuses      = "statuses"
	CollectionURLHistory    = "urlHistory"
	CollectionSocketHistory = "socketHistory"
	CollectionRequests      = "requests"
	CollectionDriveExports  = "driveExports"
	CollectionServerExports = "serverExports"
	CollectionProjects      = "projects"
)

// Collections lists every collection in declaration order.
var Collections = []string{
	CollectionHeaders,
	CollectionStatuses,
	CollectionURLHistory,
	CollectionSocketHistory,
	CollectionRequests,
	CollectionDriveExports,
	CollectionServerExports,
	CollectionProjects,
}
