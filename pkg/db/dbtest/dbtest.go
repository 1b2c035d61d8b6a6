// Package dbtest opens throwaway sqlite databases carrying the courseforge schema.
package dbtest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// schema mirrors the goose migrations with sqlite column types. Postgres enums
// become text, uuid[] becomes the array literal text produced by UUIDArray.
var schema = []string{
	`CREATE TABLE courses (
		id text PRIMARY KEY,
		title text NOT NULL,
		price text NOT NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE course_members (
		student_id text NOT NULL,
		course_id text NOT NULL,
		granted_at datetime NOT NULL,
		PRIMARY KEY (student_id, course_id)
	)`,
	`CREATE TABLE enrollments (
		id text PRIMARY KEY,
		student_id text NOT NULL,
		course_id text NOT NULL,
		status text NOT NULL,
		payment_receipt_ref text,
		voucher_code text,
		enrollment_date datetime NOT NULL,
		approval_date datetime,
		rejection_reason text,
		expiration_date datetime,
		is_expired boolean NOT NULL DEFAULT false,
		expired_at datetime,
		version integer NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime,
		UNIQUE (student_id, course_id)
	)`,
	`CREATE TABLE vouchers (
		id text PRIMARY KEY,
		code text NOT NULL UNIQUE,
		discount_percentage text NOT NULL,
		applicable_course_ids text NOT NULL,
		usage_limit integer NOT NULL,
		used_count integer NOT NULL DEFAULT 0,
		valid_from datetime NOT NULL,
		valid_until datetime NOT NULL,
		is_active boolean NOT NULL DEFAULT true,
		created_by text NOT NULL,
		created_at datetime,
		updated_at datetime,
		CHECK (used_count >= 0 AND used_count <= usage_limit)
	)`,
	`CREATE TABLE voucher_usages (
		id text PRIMARY KEY,
		voucher_id text NOT NULL,
		student_id text NOT NULL,
		course_id text NOT NULL,
		enrollment_id text NOT NULL,
		discount_amount text NOT NULL,
		original_price text NOT NULL,
		final_price text NOT NULL,
		used_at datetime NOT NULL,
		applied_by text NOT NULL,
		UNIQUE (voucher_id, student_id)
	)`,
	`CREATE TABLE payments (
		id text PRIMARY KEY,
		enrollment_id text NOT NULL,
		student_id text NOT NULL,
		course_id text NOT NULL,
		amount text NOT NULL,
		original_amount text,
		discount_amount text,
		voucher_id text,
		payment_date datetime NOT NULL,
		payment_method text NOT NULL,
		bank_name text,
		account_reference text,
		transaction_id text,
		receipt_ref text,
		gateway_order_id text UNIQUE,
		payer_id text,
		status text NOT NULL,
		version integer NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE payment_status_history (
		id text PRIMARY KEY,
		payment_id text NOT NULL,
		sequence integer NOT NULL,
		status text NOT NULL,
		updated_by text NOT NULL,
		reason text,
		updated_at datetime NOT NULL,
		UNIQUE (payment_id, sequence)
	)`,
	`CREATE TABLE notifications (
		id text PRIMARY KEY,
		user_id text NOT NULL,
		type text NOT NULL,
		title text NOT NULL,
		message text NOT NULL,
		link text,
		read_at datetime,
		created_at datetime
	)`,
	`CREATE TABLE outbox_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload blob NOT NULL,
		created_at datetime,
		published_at datetime,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text
	)`,
	`CREATE TABLE outbox_dlq (
		id text PRIMARY KEY,
		event_id text NOT NULL,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload_json blob NOT NULL,
		error_reason text NOT NULL,
		error_message text,
		attempt_count integer NOT NULL DEFAULT 0,
		failed_at datetime
	)`,
}

// New returns an isolated in-memory database with every table created.
// The pool is capped at one connection so concurrent transactions queue
// behind each other the way row locks would serialize them in Postgres.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
