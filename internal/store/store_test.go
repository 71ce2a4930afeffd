package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"campus-care-api/internal/model"
)

func TestCheckID(t *testing.T) {
	tests := []struct {
		id     string
		wantOK bool
	}{
		{uuid.NewString(), true},
		{"6ba7b810-9dad-11d1-80b4-00c04fd430c8", true},
		{"", false},
		{"abc", false},
		{"x", false},
		{"6ba7b810-9dad-11d1-80b4", false},
		{"1; drop table channels", false},
	}
	for _, tt := range tests {
		err := checkID("channel", tt.id)
		if tt.wantOK && err != nil {
			t.Errorf("checkID(%q) = %v", tt.id, err)
		}
		if !tt.wantOK && !model.IsKind(err, model.KindNotFound) {
			t.Errorf("checkID(%q) = %v, want NotFound", tt.id, err)
		}
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.Kind
	}{
		{"no rows", pgx.ErrNoRows, model.KindNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), model.KindNotFound},
		{"malformed input", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}, model.KindValidation},
		{"connection lost", errors.New("conn closed"), model.KindTransient},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, model.KindTransient},
		{"already classified", model.Forbidden("no"), model.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := model.KindOf(wrap("channel", tt.err)); got != tt.want {
				t.Errorf("kind = %q, want %q", got, tt.want)
			}
		})
	}
	if wrap("channel", nil) != nil {
		t.Error("wrap(nil) is not nil")
	}
}
