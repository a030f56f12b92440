package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
)

// Migrate creates the tables and indexes used by the service.
// Every statement is idempotent so it is safe to run on each start.
func Migrate(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewCreateTable().
			Model((*User)(nil)).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create users table: %w", err)
		}

		// Emails are unique regardless of case
		if _, err := tx.NewCreateIndex().
			Model((*User)(nil)).
			Index("users_email_lower_key").
			Unique().
			ColumnExpr("lower(email)").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create users email index: %w", err)
		}

		if _, err := tx.NewCreateTable().
			Model((*Session)(nil)).
			ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create sessions table: %w", err)
		}

		if _, err := tx.NewCreateIndex().
			Model((*Session)(nil)).
			Index("sessions_user_id_idx").
			Column("user_id").
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create sessions user index: %w", err)
		}

		if _, err := tx.NewCreateTable().
			Model((*PasswordResetToken)(nil)).
			ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("create password_reset_tokens table: %w", err)
		}

		return nil
	})
}
