package outbox

import "codeberg.org/mutker/thermowatch/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("outbox_invalid_db_path")

	// Storage Errors
	ErrStorageInit       = errors.ErrorCode("outbox_storage_init_failed")
	ErrStorageClose      = errors.ErrorCode("outbox_storage_close_failed")
	ErrTransactionFailed = errors.ErrorCode("outbox_transaction_failed")
	ErrQueryFailed       = errors.ErrorCode("outbox_query_failed")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("outbox_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("outbox_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("outbox_schema_migration_failed")
)
