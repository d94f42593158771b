package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

func recurringDoc(id, titulo string) schema.Document {
	return schema.Document{
		"id":            schema.String(id),
		"titulo":        schema.String(titulo),
		"valor":         schema.Float(100),
		"diaVencimento": schema.Int(10),
	}
}

func TestUpsertRecurring_Replace(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	first := recurringDoc("r1", "Aluguel")
	first["categoria"] = schema.String("Casa")
	if err := database.UpsertRecurring(ctx, first); err != nil {
		t.Fatalf("UpsertRecurring() failed: %v", err)
	}
	if err := database.UpsertRecurring(ctx, schema.Document{"id": schema.String("r1"), "ativo": schema.Bool(false)}); err != nil {
		t.Fatalf("UpsertRecurring() failed: %v", err)
	}

	docs, err := database.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("ListRecurring() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d templates, want 1", len(docs))
	}

	got := docs[0]
	if got["titulo"] != (schema.Null{}) || got["categoria"] != (schema.Null{}) || got["diaVencimento"] != (schema.Null{}) {
		t.Errorf("old fields survived replace: %#v", got)
	}
	if got["ativo"] != schema.Bool(false) {
		t.Errorf("ativo = %#v, want false", got["ativo"])
	}
	if got["valor"] != schema.Float(0) {
		t.Errorf("valor = %#v, want 0", got["valor"])
	}
	if got["updatedAt"] != schema.String("1700000000") {
		t.Errorf("updatedAt = %#v", got["updatedAt"])
	}
}

func TestUpsertRecurringBatch_SkipsMalformed(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	const n = 5
	docs := make([]schema.Value, n)
	for i := range docs {
		docs[i] = recurringDoc(fmt.Sprintf("r%d", i), fmt.Sprintf("T%d", i))
	}
	docs[2] = schema.List{schema.String("not an object")}

	res, err := database.UpsertRecurringBatch(ctx, docs)
	if err != nil {
		t.Fatalf("UpsertRecurringBatch() failed: %v", err)
	}
	if res.Applied != n-1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want %d applied 1 skipped", res, n-1)
	}

	list, err := database.ListRecurring(ctx)
	if err != nil {
		t.Fatalf("ListRecurring() failed: %v", err)
	}
	if len(list) != n-1 {
		t.Errorf("got %d templates, want %d", len(list), n-1)
	}
}

func TestDeleteRecurring(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_ = database.UpsertRecurring(ctx, recurringDoc("r1", "Luz"))
	_ = database.UpsertRecurring(ctx, recurringDoc("r2", "Agua"))

	if err := database.DeleteRecurring(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRecurring() failed: %v", err)
	}

	list, _ := database.ListRecurring(ctx)
	if len(list) != 1 || list[0]["id"] != schema.String("r2") {
		t.Errorf("ListRecurring() = %#v, want only r2", list)
	}
}
