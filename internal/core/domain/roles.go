package domain

// =============================================================================
// Service Roles
// =============================================================================

// ServiceRole identifies one of the fixed services every region runs.
type ServiceRole string

const (
	RoleDatabase ServiceRole = "database"
	RoleApp      ServiceRole = "app"
	RoleWorker   ServiceRole = "worker"
	RoleCache    ServiceRole = "cache"
	RoleStorage  ServiceRole = "storage"
)

// ServiceRoles returns all roles in start order: dependencies first, so the
// database and cache are up before the app server, and the worker last since
// it consumes the app's queue.
func ServiceRoles() []ServiceRole {
	return []ServiceRole{RoleDatabase, RoleCache, RoleStorage, RoleApp, RoleWorker}
}
