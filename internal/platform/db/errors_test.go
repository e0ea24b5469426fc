package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Error("expected pgx.ErrNoRows to be detected")
	}
	if !IsNoRows(fmt.Errorf("get patient: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped pgx.ErrNoRows to be detected")
	}
	if IsNoRows(errors.New("boom")) {
		t.Error("unexpected match for unrelated error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "patient_hn_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"any constraint", pgErr, "", true},
		{"matching constraint", pgErr, "patient_hn_key", true},
		{"other constraint", pgErr, "app_user_email_key", false},
		{"wrapped", fmt.Errorf("insert: %w", pgErr), "patient_hn_key", true},
		{"different code", &pgconn.PgError{Code: "23503"}, "", false},
		{"plain error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected 23503 to be a foreign key violation")
	}
	if IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("unexpected match for unique violation")
	}
}
