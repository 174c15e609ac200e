// Package all registers every poistore backend with the factory.
//
// Commands blank-import this package so that config selects the backend at
// runtime without per-backend imports in main.
package all

import (
	// register all backends with the poistore factory.
	_ "planvoyage/internal/poistore/mssql"
	_ "planvoyage/internal/poistore/postgres"
	_ "planvoyage/internal/poistore/sqlite"

	// the mssql backend expects the "sqlserver" driver to be registered by
	// the application.
	_ "github.com/microsoft/go-mssqldb"
)
