// Package storage provides database access for procedures.
//
// This package includes:
//   - Open: a GORM connection for a SQLite path or a PostgreSQL DSN
//   - Session: a dependency that runs each call in its own transaction
//   - PoolConfig and PoolOption: connection pool tuning
//
// Handlers receive the transaction through register.Inject:
//
//	register.MustRegister(api.create,
//	    register.Arg("user"),
//	    register.Inject("tx", storage.Session(db)),
//	)
package storage
