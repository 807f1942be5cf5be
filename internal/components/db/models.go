package db

import "database/sql"

type Account struct {
	ID             int64
	Username       string
	Email          sql.NullString
	NotifyEndpoint sql.NullString
	NotifyEnabled  bool
	CreatedAt      int64
}

type Product struct {
	ID        int64
	AccountID int64
	Alias     string
	Brand     string
	Model     string
	Retailer  string
	Url       string
	CreatedAt int64
}

type Observation struct {
	ID        int64
	ProductID int64
	InStock   bool
	Price     sql.NullFloat64
	CheckedAt int64
}
