package main

import (
	"testing"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

func TestTableURL(t *testing.T) {
	got, err := tableURL("ws://localhost:8080/", "t-42", "Ana", enums.RoleCustomer)
	if err != nil {
		t.Fatalf("tableURL: %v", err)
	}
	want := "ws://localhost:8080/ws/tables/t-42?name=Ana&role=customer"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
