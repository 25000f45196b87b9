package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bytedance/sonic"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
)

// sonicProvider lets bun encode jsonb columns with Sonic.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

// SettingsDocument is the row holding the whole settings document.
type SettingsDocument struct {
	bun.BaseModel `bun:"table:settings_documents"`

	Name      string    `bun:",pk"`
	Body      Document  `bun:",type:jsonb,notnull"`
	UpdatedAt time.Time `bun:",notnull,default:current_timestamp"`
}

// PostgresOptions configures the PostgreSQL connection.
type PostgresOptions struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	MaxOpenConns int
	MaxIdleConns int
}

// PostgresBackend keeps the document as a jsonb row in PostgreSQL.
type PostgresBackend struct {
	db *bun.DB
}

// NewPostgresBackend connects to PostgreSQL and ensures the table exists.
func NewPostgresBackend(ctx context.Context, opts PostgresOptions) (*PostgresBackend, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", opts.Host, opts.Port)),
		pgdriver.WithUser(opts.User),
		pgdriver.WithPassword(opts.Password),
		pgdriver.WithDatabase(opts.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("warden"),
	))

	if opts.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if opts.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(opts.MaxIdleConns)
	}

	bunjson.SetProvider(sonicProvider{})

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(opts.DBName)))

	_, err := db.NewCreateTable().Model((*SettingsDocument)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) (Document, error) {
	row := new(SettingsDocument)

	err := b.db.NewSelect().Model(row).Where("name = ?", documentName).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to select settings document: %w", err)
	}

	if row.Body == nil {
		return Document{}, nil
	}

	return row.Body, nil
}

func (b *PostgresBackend) Save(ctx context.Context, doc Document) error {
	row := &SettingsDocument{
		Name:      documentName,
		Body:      doc,
		UpdatedAt: time.Now(),
	}

	_, err := b.db.NewInsert().
		Model(row).
		On("CONFLICT (name) DO UPDATE").
		Set("body = EXCLUDED.body").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert settings document: %w", err)
	}

	return nil
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
