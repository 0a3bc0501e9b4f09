// Package all registers every sink backend with the storage factory.
//
// Commands blank-import this package so config can select any backend at
// runtime without the binary linking decisions leaking into library code.
package all

import (
	// SQL Server driver registration for the mssql backend, which
	// deliberately does not import the driver itself.
	_ "github.com/microsoft/go-mssqldb"

	_ "tempetl/internal/storage/kafka"
	_ "tempetl/internal/storage/mssql"
	_ "tempetl/internal/storage/postgres"
	_ "tempetl/internal/storage/sqlite"
)
