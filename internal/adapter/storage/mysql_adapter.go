package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/realtime-inventory/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

//go:embed schema/mysql.sql
var mysqlSchema string

const selectInventory = `
	SELECT product_id, store_location, current_stock, reorder_point, max_capacity,
	       supplier_id, last_transaction_id, last_updated, version
	FROM inventory`

type rowScanner interface {
	Scan(dest ...any) error
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the inventory and applied_transactions tables when missing.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(mysqlSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewTransportError("create schema", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key domain.Key) (*domain.InventoryRecord, error) {
	row := m.db.QueryRowContext(ctx, selectInventory+` WHERE product_id = ? AND store_location = ?`,
		key.ProductID, key.StoreLocation)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, domain.NewTransportError("query inventory", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) ConditionallyUpdate(ctx context.Context, key domain.Key, expectedVersion int64, update domain.RecordUpdate) (*domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewTransportError("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applied_transactions (product_id, store_location, transaction_id, applied_at)
		VALUES (?, ?, ?, ?)`,
		key.ProductID, key.StoreLocation, update.TransactionID, update.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return nil, domain.ErrAlreadyApplied
	}
	if err != nil {
		return nil, domain.NewTransportError("insert applied transaction", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET current_stock = ?, last_transaction_id = ?, last_updated = ?, version = version + 1
		WHERE product_id = ? AND store_location = ? AND version = ?`,
		update.CurrentStock, update.TransactionID, update.UpdatedAt,
		key.ProductID, key.StoreLocation, expectedVersion,
	)
	if err != nil {
		return nil, domain.NewTransportError("update inventory", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, domain.NewTransportError("rows affected", err)
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectInventory+` WHERE product_id = ? AND store_location = ?`,
		key.ProductID, key.StoreLocation))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, domain.NewTransportError("reload inventory", err)
	}
	if rows == 0 {
		return nil, domain.ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewTransportError("commit", err)
	}
	return rec, nil
}

func (m *MySQLAdapter) HasApplied(ctx context.Context, key domain.Key, transactionID string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applied_transactions
		WHERE product_id = ? AND store_location = ? AND transaction_id = ?`,
		key.ProductID, key.StoreLocation, transactionID,
	).Scan(&n)
	if err != nil {
		return false, domain.NewTransportError("query applied transactions", err)
	}
	return n > 0, nil
}

func (m *MySQLAdapter) Scan(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, selectInventory+` ORDER BY product_id, store_location`)
	if err != nil {
		return nil, domain.NewTransportError("scan inventory", err)
	}
	defer rows.Close()

	var out []domain.InventoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.NewTransportError("scan inventory row", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransportError("scan inventory", err)
	}
	return out, nil
}

func (m *MySQLAdapter) Seed(ctx context.Context, records ...domain.InventoryRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewTransportError("begin tx", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, store_location, current_stock, reorder_point, max_capacity, supplier_id, version)
			VALUES (?, ?, ?, ?, ?, ?, 0)
			ON DUPLICATE KEY UPDATE current_stock = VALUES(current_stock), reorder_point = VALUES(reorder_point),
				max_capacity = VALUES(max_capacity), supplier_id = VALUES(supplier_id),
				last_transaction_id = NULL, last_updated = NULL, version = 0`,
			r.ProductID, r.StoreLocation, r.CurrentStock, r.ReorderPoint, r.MaxCapacity, r.SupplierID,
		)
		if err != nil {
			return domain.NewTransportError(fmt.Sprintf("seed %s", r.Key()), err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM applied_transactions WHERE product_id = ? AND store_location = ?`,
			r.ProductID, r.StoreLocation); err != nil {
			return domain.NewTransportError(fmt.Sprintf("reset applied %s", r.Key()), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewTransportError("commit", err)
	}
	return nil
}

func scanRecord(row rowScanner) (*domain.InventoryRecord, error) {
	var (
		rec         domain.InventoryRecord
		lastTxn     sql.NullString
		lastUpdated sql.NullTime
	)
	err := row.Scan(&rec.ProductID, &rec.StoreLocation, &rec.CurrentStock, &rec.ReorderPoint,
		&rec.MaxCapacity, &rec.SupplierID, &lastTxn, &lastUpdated, &rec.Version)
	if err != nil {
		return nil, err
	}
	rec.LastTransactionID = lastTxn.String
	if lastUpdated.Valid {
		rec.LastUpdated = lastUpdated.Time.UTC()
	}
	return &rec, nil
}

func isDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
