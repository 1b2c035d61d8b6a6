package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/db/dbtest"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
)

func TestGetCourseNotFound(t *testing.T) {
	conn := dbtest.New(t)
	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.GetCourse(context.Background(), nil, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGrantAndRevokeAccess(t *testing.T) {
	conn := dbtest.New(t)
	ctx := context.Background()
	course := models.Course{ID: uuid.New(), Title: "Go 101", Price: decimal.RequireFromString("100.00")}
	if err := conn.Create(&course).Error; err != nil {
		t.Fatalf("seed course: %v", err)
	}

	svc, err := NewService(NewRepository(conn))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	student := uuid.New()

	for i := 0; i < 2; i++ {
		if err := svc.GrantAccess(ctx, conn, student, course.ID); err != nil {
			t.Fatalf("grant access (attempt %d): %v", i+1, err)
		}
	}
	ok, err := svc.HasMembership(ctx, student, course.ID)
	if err != nil || !ok {
		t.Fatalf("expected membership, got %v err=%v", ok, err)
	}

	if err := svc.RevokeAccess(ctx, conn, student, course.ID); err != nil {
		t.Fatalf("revoke access: %v", err)
	}
	ok, err = svc.HasMembership(ctx, student, course.ID)
	if err != nil || ok {
		t.Fatalf("expected no membership, got %v err=%v", ok, err)
	}

	got, err := svc.GetCourse(ctx, nil, course.ID)
	if err != nil {
		t.Fatalf("get course: %v", err)
	}
	if !got.Price.Equal(course.Price) {
		t.Fatalf("expected price %s, got %s", course.Price, got.Price)
	}
}
