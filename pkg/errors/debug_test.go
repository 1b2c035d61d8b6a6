package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpFieldsForVoucherUsageConflict(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_voucher_usages_voucher_student",
		TableName:      "voucher_usages",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert usage: %w", pgErr), "voucher already used").
		WithDetails(map[string]any{"step": "record_usage"})

	fields := Dump(err).Fields()
	if fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if fields["step"] != "record_usage" {
		t.Fatalf("expected step detail, got %v", fields["step"])
	}
	if fields["pg_code"] != "23505" || fields["pg_table"] != "voucher_usages" {
		t.Fatalf("missing postgres diagnostics: %v", fields)
	}
	if fields["constraint_entity"] != "voucher_usages" {
		t.Fatalf("unexpected constraint entity %v", fields["constraint_entity"])
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted")
	}
}

func TestDumpFieldsWithoutDatabaseError(t *testing.T) {
	fields := Dump(New(CodeStateConflict, "payment is rejected")).Fields()
	for _, key := range []string{"pg_code", "pg_constraint", "constraint_entity", "step"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("unexpected field %s", key)
		}
	}
	if len(Dump(nil).Chain) != 0 {
		t.Fatalf("nil error should dump empty")
	}
}

func TestConstraintEntity(t *testing.T) {
	cases := map[string]string{
		"ux_vouchers_code":                   "vouchers",
		"ck_payments_receipt":                "payments",
		"ux_payment_status_history_sequence": "payment_status_history",
		"ck_enrollments_approval_date":       "enrollments",
		"users_email_key":                    "",
		"":                                   "",
	}
	for constraint, want := range cases {
		if got := ConstraintEntity(constraint); got != want {
			t.Errorf("ConstraintEntity(%q) = %q, want %q", constraint, got, want)
		}
	}
}
