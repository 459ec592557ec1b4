package domain

// Models lists every persisted type, in dependency order, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&SyncUnit{},
		&FetchAttempt{},
		&Order{},
		&OrderItem{},
		&OrderDetail{},
		&SyncWatermark{},
	}
}
