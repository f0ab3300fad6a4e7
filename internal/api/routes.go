package api

const (
	HealthCheckRoute = "/healthz"
	VersionRoute     = "/version"

	EntitlementsRoute       = "/softwareEntitlements"
	RenewEntitlementRoute   = EntitlementsRoute + "/{id}/renew"
	ReleaseEntitlementRoute = EntitlementsRoute + "/{id}"

	AdminParent           = "/v1/admin/"
	ListEntitlementsRoute = AdminParent + "entitlements"
	ListAuditsRoute       = AdminParent + "audits"
)
