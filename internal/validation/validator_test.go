// Roomscope - Room Discovery and Presence History
// Copyright 2026 Roomscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/roomscope/roomscope

package validation

import (
	"strings"
	"testing"
)

type pageParams struct {
	Limit  int `validate:"min=0,max=1000"`
	Offset int `validate:"min=0"`
}

func TestValidateStructPasses(t *testing.T) {
	if verr := ValidateStruct(&pageParams{Limit: 20, Offset: 40}); verr != nil {
		t.Fatalf("expected nil, got %v", verr)
	}
	if verr := ValidateStruct(&pageParams{}); verr != nil {
		t.Fatalf("zero values within bounds should pass, got %v", verr)
	}
}

func TestValidateStructNumericBounds(t *testing.T) {
	verr := ValidateStruct(&pageParams{Limit: -1})
	if verr == nil {
		t.Fatal("expected validation error for negative limit")
	}
	if len(verr.Fields()) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(verr.Fields()))
	}
	fe := verr.Fields()[0]
	if fe.Field() != "Limit" || fe.Tag() != "min" {
		t.Errorf("unexpected field error: field=%s tag=%s", fe.Field(), fe.Tag())
	}
	if !strings.Contains(verr.Error(), "Limit must be at least 0") {
		t.Errorf("unexpected message: %s", verr.Error())
	}
}

func TestValidateStructJoinsMultipleErrors(t *testing.T) {
	verr := ValidateStruct(&pageParams{Limit: 5000, Offset: -3})
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if len(verr.Fields()) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(verr.Fields()))
	}
	msg := verr.Error()
	if !strings.Contains(msg, "Limit must be at most 1000") {
		t.Errorf("missing limit message: %s", msg)
	}
	if !strings.Contains(msg, "Offset must be at least 0") {
		t.Errorf("missing offset message: %s", msg)
	}
	if !strings.Contains(msg, "; ") {
		t.Errorf("messages should be joined with a semicolon: %s", msg)
	}
}

func TestValidateStructStringBounds(t *testing.T) {
	type named struct {
		Name string `validate:"required,max=8"`
	}
	verr := ValidateStruct(&named{})
	if verr == nil || !strings.Contains(verr.Error(), "Name is required") {
		t.Fatalf("expected required error, got %v", verr)
	}
	verr = ValidateStruct(&named{Name: "much-too-long-name"})
	if verr == nil || !strings.Contains(verr.Error(), "Name must be at most 8 characters") {
		t.Fatalf("expected string max error, got %v", verr)
	}
}
