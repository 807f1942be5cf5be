// Package catalog stores accounts, their tracked products, the observations
// recorded for each product and the global check frequency.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"productchecker/internal/components/assert"
	"productchecker/internal/components/chrono"
	"productchecker/internal/components/db"
	"productchecker/internal/components/telemetry"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("already exists")
	ErrInvalidFrequency = fmt.Errorf("check frequency must be between %d and %d seconds", MinFrequency, MaxFrequency)
)

const (
	MinFrequency = 10
	MaxFrequency = 86400
)

const (
	report_record_discard = "record.discard"
	report_delete_discard = "delete.discard"
)

type NotificationPrefs struct {
	Endpoint sql.NullString
	Enabled  bool
}

// Active reports whether a notification should be sent to Endpoint.
func (p NotificationPrefs) Active() bool {
	return p.Enabled && p.Endpoint.Valid && strings.TrimSpace(p.Endpoint.String) != ""
}

// normalize turns notifications off when there is nowhere to send them.
func (p NotificationPrefs) normalize() NotificationPrefs {
	endpoint := strings.TrimSpace(p.Endpoint.String)
	if !p.Endpoint.Valid || endpoint == "" {
		return NotificationPrefs{}
	}
	return NotificationPrefs{
		Endpoint: sql.NullString{String: endpoint, Valid: true},
		Enabled:  p.Enabled,
	}
}

type Account struct {
	ID        int64
	Username  string
	Email     string
	Prefs     NotificationPrefs
	CreatedAt time.Time
}

type Product struct {
	ID        int64
	AccountID int64
	Alias     string
	Brand     string
	Model     string
	Retailer  string
	URL       string
	CreatedAt time.Time
}

type Observation struct {
	ID        int64
	ProductID int64
	InStock   bool
	// Price is invalid when no price could be extracted.
	Price     sql.NullFloat64
	CheckedAt time.Time
}

// Recorded is the result of RecordObservation.
type Recorded struct {
	Observation Observation
	// Previous is the latest observation before Observation, only meaningful
	// when HadPrevious is set.
	Previous    Observation
	HadPrevious bool
}

type NewAccount struct {
	Username string `validate:"required,max=64,printascii"`
	Email    string `validate:"omitempty,email"`
	Prefs    NotificationPrefs
}

type NewProduct struct {
	AccountID int64  `validate:"required"`
	Alias     string `validate:"required,max=128"`
	Brand     string
	Model     string
	Retailer  string `validate:"required"`
	URL       string `validate:"required,http_url"`
}

// DashboardRow is a product together with its latest observation.
type DashboardRow struct {
	Product Product
	Latest  Observation
	// Checked is false when the product has never been observed.
	Checked bool
}

type Store struct {
	db     *sql.DB
	qry    *db.Queries
	makeTx db.MakeTx
	time   chrono.TimeAPI
	tel    telemetry.API
	valid  *validator.Validate
}

func NewStore(database *sql.DB, time chrono.TimeAPI, tel telemetry.API) Store {
	assert.NotNil(database, "database")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	return Store{
		db:     database,
		qry:    db.New(database),
		makeTx: db.NewMakeTx(database),
		time:   time,
		tel:    tel,
		valid:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func fromUnix(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func accountFromRow(row db.Account) Account {
	return Account{
		ID:       row.ID,
		Username: row.Username,
		Email:    row.Email.String,
		Prefs: NotificationPrefs{
			Endpoint: row.NotifyEndpoint,
			Enabled:  row.NotifyEnabled,
		},
		CreatedAt: fromUnix(row.CreatedAt),
	}
}

func productFromRow(row db.Product) Product {
	return Product{
		ID:        row.ID,
		AccountID: row.AccountID,
		Alias:     row.Alias,
		Brand:     row.Brand,
		Model:     row.Model,
		Retailer:  row.Retailer,
		URL:       row.Url,
		CreatedAt: fromUnix(row.CreatedAt),
	}
}

func observationFromRow(row db.Observation) Observation {
	return Observation{
		ID:        row.ID,
		ProductID: row.ProductID,
		InStock:   row.InStock,
		Price:     row.Price,
		CheckedAt: fromUnix(row.CheckedAt),
	}
}

func (s Store) CreateAccount(ctx context.Context, account NewAccount) (Account, error) {
	err := s.valid.Struct(account)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}

	prefs := account.Prefs.normalize()
	now := s.time.Now()
	id, err := s.qry.CreateAccount(ctx, db.CreateAccountParams{
		Username:       account.Username,
		Email:          nullString(account.Email),
		NotifyEndpoint: prefs.Endpoint,
		NotifyEnabled:  prefs.Enabled,
		CreatedAt:      now.UnixMilli(),
	})
	if isUniqueViolation(err) {
		return Account{}, fmt.Errorf("create account %q: %w", account.Username, ErrDuplicate)
	}
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}

	return Account{
		ID:        id,
		Username:  account.Username,
		Email:     account.Email,
		Prefs:     prefs,
		CreatedAt: fromUnix(now.UnixMilli()),
	}, nil
}

func (s Store) GetAccount(ctx context.Context, username string) (Account, error) {
	row, err := s.qry.GetAccountByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return accountFromRow(row), nil
}

// SetNotificationPrefs replaces the notification preferences of an account.
// Enabling notifications without an endpoint leaves them disabled.
func (s Store) SetNotificationPrefs(ctx context.Context, username string, prefs NotificationPrefs) (NotificationPrefs, error) {
	account, err := s.GetAccount(ctx, username)
	if err != nil {
		return NotificationPrefs{}, err
	}

	prefs = prefs.normalize()
	_, err = s.qry.UpdateAccountNotification(ctx, db.UpdateAccountNotificationParams{
		NotifyEndpoint: prefs.Endpoint,
		NotifyEnabled:  prefs.Enabled,
		ID:             account.ID,
	})
	if err != nil {
		return NotificationPrefs{}, fmt.Errorf("set notification prefs: %w", err)
	}
	return prefs, nil
}

// GetOwner returns the notification preferences of the account owning a product.
func (s Store) GetOwner(ctx context.Context, productID int64) (NotificationPrefs, error) {
	row, err := s.qry.GetProductOwner(ctx, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return NotificationPrefs{}, fmt.Errorf("owner of product %d: %w", productID, ErrNotFound)
	}
	if err != nil {
		return NotificationPrefs{}, fmt.Errorf("get owner: %w", err)
	}
	return NotificationPrefs{
		Endpoint: row.NotifyEndpoint,
		Enabled:  row.NotifyEnabled,
	}, nil
}

func (s Store) AddProduct(ctx context.Context, product NewProduct) (Product, error) {
	err := s.valid.Struct(product)
	if err != nil {
		return Product{}, fmt.Errorf("add product: %w", err)
	}

	now := s.time.Now()
	id, err := s.qry.CreateProduct(ctx, db.CreateProductParams{
		AccountID: product.AccountID,
		Alias:     product.Alias,
		Brand:     product.Brand,
		Model:     product.Model,
		Retailer:  product.Retailer,
		Url:       product.URL,
		CreatedAt: now.UnixMilli(),
	})
	if isUniqueViolation(err) {
		return Product{}, fmt.Errorf("add product %s: %w", product.URL, ErrDuplicate)
	}
	if err != nil {
		return Product{}, fmt.Errorf("add product: %w", err)
	}

	return Product{
		ID:        id,
		AccountID: product.AccountID,
		Alias:     product.Alias,
		Brand:     product.Brand,
		Model:     product.Model,
		Retailer:  product.Retailer,
		URL:       product.URL,
		CreatedAt: fromUnix(now.UnixMilli()),
	}, nil
}

func (s Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	row, err := s.qry.GetProduct(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return productFromRow(row), nil
}

// DeleteProduct removes a product and every observation recorded for it.
func (s Store) DeleteProduct(ctx context.Context, id int64) error {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err := discard()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.tel.ReportBroken(report_delete_discard, err, slog.Int64("product_id", id))
		}
	}()

	err = tx.DeleteProductObservations(ctx, id)
	if err != nil {
		return fmt.Errorf("delete observations: %w", err)
	}
	n, err := tx.DeleteProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return commit()
}

// ListDistinctProducts returns every tracked product exactly once, ordered by id.
func (s Store) ListDistinctProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.qry.ListDistinctProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]Product, len(rows))
	for i, r := range rows {
		out[i] = productFromRow(r)
	}
	return out, nil
}

// GetLatestObservation returns the most recent observation of a product, the
// boolean is false if the product was never observed.
func (s Store) GetLatestObservation(ctx context.Context, productID int64) (Observation, bool, error) {
	return latestObservation(ctx, s.qry, productID)
}

func latestObservation(ctx context.Context, qry *db.Queries, productID int64) (Observation, bool, error) {
	row, err := qry.GetLatestObservation(ctx, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return Observation{}, false, nil
	}
	if err != nil {
		return Observation{}, false, fmt.Errorf("get latest observation: %w", err)
	}
	return observationFromRow(row), true, nil
}

func appendObservation(ctx context.Context, qry *db.Queries, obs Observation) (Observation, error) {
	id, err := qry.CreateObservation(ctx, db.CreateObservationParams{
		ProductID: obs.ProductID,
		InStock:   obs.InStock,
		Price:     obs.Price,
		CheckedAt: obs.CheckedAt.UnixMilli(),
	})
	if err != nil {
		return Observation{}, fmt.Errorf("append observation: %w", err)
	}
	obs.ID = id
	obs.CheckedAt = fromUnix(obs.CheckedAt.UnixMilli())
	return obs, nil
}

// AppendObservation stores obs and returns it with its assigned id.
func (s Store) AppendObservation(ctx context.Context, obs Observation) (Observation, error) {
	return appendObservation(ctx, s.qry, obs)
}

// RecordObservation reads the latest observation of the product and appends
// obs in the same transaction, so the returned previous observation is
// exactly the one obs follows.
func (s Store) RecordObservation(ctx context.Context, obs Observation) (Recorded, error) {
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return Recorded{}, err
	}
	defer func() {
		err := discard()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.tel.ReportBroken(report_record_discard, err, slog.Int64("product_id", obs.ProductID))
		}
	}()

	previous, found, err := latestObservation(ctx, tx, obs.ProductID)
	if err != nil {
		return Recorded{}, err
	}
	saved, err := appendObservation(ctx, tx, obs)
	if err != nil {
		return Recorded{}, err
	}
	err = commit()
	if err != nil {
		return Recorded{}, fmt.Errorf("commit observation: %w", err)
	}

	return Recorded{
		Observation: saved,
		Previous:    previous,
		HadPrevious: found,
	}, nil
}

// History returns up to limit observations of a product, newest first.
func (s Store) History(ctx context.Context, productID int64, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.qry.GetObservations(ctx, db.GetObservationsParams{
		ProductID: productID,
		Limit:     int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := make([]Observation, len(rows))
	for i, r := range rows {
		out[i] = observationFromRow(r)
	}
	return out, nil
}

// Dashboard lists the products of an account with their latest observation.
func (s Store) Dashboard(ctx context.Context, username string) ([]DashboardRow, error) {
	account, err := s.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, err := s.qry.GetDashboard(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	out := make([]DashboardRow, len(rows))
	for i, r := range rows {
		out[i] = DashboardRow{
			Product: Product{
				ID:        r.ID,
				AccountID: account.ID,
				Alias:     r.Alias,
				Brand:     r.Brand,
				Model:     r.Model,
				Retailer:  r.Retailer,
				URL:       r.Url,
			},
			Checked: r.CheckedAt.Valid,
		}
		if r.CheckedAt.Valid {
			out[i].Latest = Observation{
				ProductID: r.ID,
				InStock:   r.InStock.Bool,
				Price:     r.Price,
				CheckedAt: fromUnix(r.CheckedAt.Int64),
			}
		}
	}
	return out, nil
}

func ValidateFrequency(d time.Duration) error {
	seconds := int64(d / time.Second)
	if d%time.Second != 0 || seconds < MinFrequency || seconds > MaxFrequency {
		return fmt.Errorf("%s: %w", d, ErrInvalidFrequency)
	}
	return nil
}

// GetCheckFrequency returns ErrNotFound when no frequency was ever set and
// ErrInvalidFrequency when the stored value is out of range.
func (s Store) GetCheckFrequency(ctx context.Context) (time.Duration, error) {
	seconds, err := s.qry.GetCheckFrequency(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("check frequency: %w", ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get check frequency: %w", err)
	}
	d := time.Duration(seconds) * time.Second
	err = ValidateFrequency(d)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func (s Store) SetCheckFrequency(ctx context.Context, d time.Duration) error {
	err := ValidateFrequency(d)
	if err != nil {
		return err
	}
	err = s.qry.SetCheckFrequency(ctx, int64(d/time.Second))
	if err != nil {
		return fmt.Errorf("set check frequency: %w", err)
	}
	return nil
}
