package dbadapter

import "github.com/dbsentinel/dbsentinel/internal/db"

// Registry resolves a Target's db_type to its Adapter. The pipeline never
// type-switches on db_type itself; it asks the registry once and calls the
// uniform Adapter interface thereafter.
type Registry struct {
	adapters map[db.DBType]Adapter
}

// NewRegistry builds a Registry preloaded with the four built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[db.DBType]Adapter)}
	r.Register(db.DBTypePostgreSQL, NewPostgresAdapter())
	r.Register(db.DBTypeMySQL, NewMySQLAdapter())
	r.Register(db.DBTypeSQLite, NewSQLiteAdapter())
	r.Register(db.DBTypeNeo4j, NewNeo4jAdapter())
	return r
}

// Register installs or replaces the Adapter for a db_type. Exposed mainly
// for tests to install fakes.
func (r *Registry) Register(dbType db.DBType, adapter Adapter) {
	r.adapters[dbType] = adapter
}

// Resolve returns the Adapter registered for dbType, or ErrUnsupportedDBType.
func (r *Registry) Resolve(dbType db.DBType) (Adapter, error) {
	adapter, ok := r.adapters[dbType]
	if !ok {
		return nil, ErrUnsupportedDBType
	}
	return adapter, nil
}
