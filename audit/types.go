package audit

// Meta keys written by the ledger, record store and access guard
const (
	MetaOwnerID      = "ownerId"
	MetaGranteeID    = "granteeId"
	MetaAccessType   = "accessType"
	MetaExpiresAt    = "expiresAt"
	MetaPermissionID = "permissionId"
	MetaRecordID     = "recordId"
	MetaContentHash  = "contentHash"
	MetaCategory     = "category"
	MetaReason       = "reason"
	MetaOK           = "ok"
	MetaRevokedAt    = "revokedAt"
)
