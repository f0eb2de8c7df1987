package errmsg

import "github.com/pkg/errors"

var (
	KeyIsEmpty = errors.New("key is empty")

	ManagerStopped     = errors.New("transaction manager is stopped")
	AlreadyCommitted   = errors.New("transaction already committed")
	TransactionAborted = errors.New("transaction aborted")
	DbStopped          = errors.New("db is stopped, can not perform the operation")
	StoreStopped       = errors.New("store is stopped")

	NotRegistered     = errors.New("connection is not registered")
	AlreadyRegistered = errors.New("connection is already registered")
	RegistryShutdown  = errors.New("registry is shutting down")

	ShortRead         = errors.New("short read")
	PayloadTooLarge   = errors.New("payload too large")
	ProtocolViolation = errors.New("protocol violation")
)
