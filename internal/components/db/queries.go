package db

import (
	"context"
	"database/sql"
)

const createAccount = `-- name: CreateAccount :one
insert into account(username, email, notify_endpoint, notify_enabled, created_at)
values (?, ?, ?, ?, ?)
returning id
`

type CreateAccountParams struct {
	Username       string
	Email          sql.NullString
	NotifyEndpoint sql.NullString
	NotifyEnabled  bool
	CreatedAt      int64
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createAccount,
		arg.Username,
		arg.Email,
		arg.NotifyEndpoint,
		arg.NotifyEnabled,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getAccountByUsername = `-- name: GetAccountByUsername :one
select id, username, email, notify_endpoint, notify_enabled, created_at from account
where username = ?
`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByUsername, username)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.NotifyEndpoint,
		&i.NotifyEnabled,
		&i.CreatedAt,
	)
	return i, err
}

const updateAccountNotification = `-- name: UpdateAccountNotification :execrows
update account set notify_endpoint = ?, notify_enabled = ?
where id = ?
`

type UpdateAccountNotificationParams struct {
	NotifyEndpoint sql.NullString
	NotifyEnabled  bool
	ID             int64
}

func (q *Queries) UpdateAccountNotification(ctx context.Context, arg UpdateAccountNotificationParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAccountNotification, arg.NotifyEndpoint, arg.NotifyEnabled, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createProduct = `-- name: CreateProduct :one
insert into product(account_id, alias, brand, model, retailer, url, created_at)
values (?, ?, ?, ?, ?, ?, ?)
returning id
`

type CreateProductParams struct {
	AccountID int64
	Alias     string
	Brand     string
	Model     string
	Retailer  string
	Url       string
	CreatedAt int64
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createProduct,
		arg.AccountID,
		arg.Alias,
		arg.Brand,
		arg.Model,
		arg.Retailer,
		arg.Url,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getProduct = `-- name: GetProduct :one
select id, account_id, alias, brand, model, retailer, url, created_at from product
where id = ?
`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRowContext(ctx, getProduct, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.AccountID,
		&i.Alias,
		&i.Brand,
		&i.Model,
		&i.Retailer,
		&i.Url,
		&i.CreatedAt,
	)
	return i, err
}

const listDistinctProducts = `-- name: ListDistinctProducts :many
select distinct id, account_id, alias, brand, model, retailer, url, created_at from product
order by id
`

func (q *Queries) ListDistinctProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.QueryContext(ctx, listDistinctProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		var i Product
		if err := rows.Scan(
			&i.ID,
			&i.AccountID,
			&i.Alias,
			&i.Brand,
			&i.Model,
			&i.Retailer,
			&i.Url,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteProductObservations = `-- name: DeleteProductObservations :exec
delete from observation where product_id = ?
`

func (q *Queries) DeleteProductObservations(ctx context.Context, productID int64) error {
	_, err := q.db.ExecContext(ctx, deleteProductObservations, productID)
	return err
}

const deleteProduct = `-- name: DeleteProduct :execrows
delete from product where id = ?
`

func (q *Queries) DeleteProduct(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteProduct, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getProductOwner = `-- name: GetProductOwner :one
select a.notify_endpoint, a.notify_enabled from product p
join account a on a.id = p.account_id
where p.id = ?
`

type GetProductOwnerRow struct {
	NotifyEndpoint sql.NullString
	NotifyEnabled  bool
}

func (q *Queries) GetProductOwner(ctx context.Context, productID int64) (GetProductOwnerRow, error) {
	row := q.db.QueryRowContext(ctx, getProductOwner, productID)
	var i GetProductOwnerRow
	err := row.Scan(&i.NotifyEndpoint, &i.NotifyEnabled)
	return i, err
}

const getLatestObservation = `-- name: GetLatestObservation :one
select id, product_id, in_stock, price, checked_at from observation
where product_id = ?
order by checked_at desc, id desc
limit 1
`

func (q *Queries) GetLatestObservation(ctx context.Context, productID int64) (Observation, error) {
	row := q.db.QueryRowContext(ctx, getLatestObservation, productID)
	var i Observation
	err := row.Scan(
		&i.ID,
		&i.ProductID,
		&i.InStock,
		&i.Price,
		&i.CheckedAt,
	)
	return i, err
}

const createObservation = `-- name: CreateObservation :one
insert into observation(product_id, in_stock, price, checked_at)
values (?, ?, ?, ?)
returning id
`

type CreateObservationParams struct {
	ProductID int64
	InStock   bool
	Price     sql.NullFloat64
	CheckedAt int64
}

func (q *Queries) CreateObservation(ctx context.Context, arg CreateObservationParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createObservation,
		arg.ProductID,
		arg.InStock,
		arg.Price,
		arg.CheckedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getObservations = `-- name: GetObservations :many
select id, product_id, in_stock, price, checked_at from observation
where product_id = ?
order by checked_at desc, id desc
limit ?
`

type GetObservationsParams struct {
	ProductID int64
	Limit     int64
}

func (q *Queries) GetObservations(ctx context.Context, arg GetObservationsParams) ([]Observation, error) {
	rows, err := q.db.QueryContext(ctx, getObservations, arg.ProductID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Observation
	for rows.Next() {
		var i Observation
		if err := rows.Scan(
			&i.ID,
			&i.ProductID,
			&i.InStock,
			&i.Price,
			&i.CheckedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCheckFrequency = `-- name: GetCheckFrequency :one
select seconds from check_frequency where id = 0
`

func (q *Queries) GetCheckFrequency(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getCheckFrequency)
	var seconds int64
	err := row.Scan(&seconds)
	return seconds, err
}

const setCheckFrequency = `-- name: SetCheckFrequency :exec
insert into check_frequency(id, seconds) values (0, ?)
on conflict(id) do update set seconds = excluded.seconds
`

func (q *Queries) SetCheckFrequency(ctx context.Context, seconds int64) error {
	_, err := q.db.ExecContext(ctx, setCheckFrequency, seconds)
	return err
}

const getDashboard = `-- name: GetDashboard :many
select p.id, p.alias, p.brand, p.model, p.retailer, p.url, o.in_stock, o.price, o.checked_at
from product p
left join observation o on o.id = (
    select o2.id from observation o2
    where o2.product_id = p.id
    order by o2.checked_at desc, o2.id desc
    limit 1
)
where p.account_id = ?
order by p.id
`

type GetDashboardRow struct {
	ID        int64
	Alias     string
	Brand     string
	Model     string
	Retailer  string
	Url       string
	InStock   sql.NullBool
	Price     sql.NullFloat64
	CheckedAt sql.NullInt64
}

func (q *Queries) GetDashboard(ctx context.Context, accountID int64) ([]GetDashboardRow, error) {
	rows, err := q.db.QueryContext(ctx, getDashboard, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetDashboardRow
	for rows.Next() {
		var i GetDashboardRow
		if err := rows.Scan(
			&i.ID,
			&i.Alias,
			&i.Brand,
			&i.Model,
			&i.Retailer,
			&i.Url,
			&i.InStock,
			&i.Price,
			&i.CheckedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
