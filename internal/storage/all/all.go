// Package all registers every storage backend with the storage factory.
// Commands import it for side effects; config picks the backend.
package all

import (
	_ "askdata/internal/storage/mssql"
	_ "askdata/internal/storage/postgres"
	_ "askdata/internal/storage/sqlite"
)
