package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/Raaghu/collaboration/modules/accounts/domain/ports"
	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
)

func TestMemoryStore_InsertAssignsIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id1, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	id2, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "globex"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids=%d,%d", id1, id2)
	}
}

func TestMemoryStore_AccountNameUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"}); err != nil {
		t.Fatalf("err=%v", err)
	}
	_, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"})
	if !errors.Is(err, ports.ErrDuplicateRow) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_MembershipPairUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	link := types.Row{"organization_id": int64(1), "person_id": int64(2)}
	if _, err := s.Insert(ctx, types.TableOrganizationPerson, link); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Insert(ctx, types.TableOrganizationPerson, link); !errors.Is(err, ports.ErrDuplicateRow) {
		t.Fatal("expected duplicate pair to be rejected")
	}
	if _, err := s.Insert(ctx, types.TableOrganizationPerson, types.Row{"organization_id": int64(1), "person_id": int64(3)}); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_FindByFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"alpha", "beta", "alphabet"} {
		if _, err := s.Insert(ctx, types.TableOrganization, types.Row{"name": name, "parent_id": nil}); err != nil {
			t.Fatalf("err=%v", err)
		}
	}

	rows, err := s.FindBy(ctx, types.TableOrganization, []types.Condition{types.Eq("name", "beta")}, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "beta" {
		t.Fatalf("rows=%v", rows)
	}

	rows, err = s.FindBy(ctx, types.TableOrganization, []types.Condition{types.Like("name", "alpha%")}, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%v", rows)
	}

	rows, err = s.FindBy(ctx, types.TableOrganization, []types.Condition{types.InInt64("id", []int64{1, 3})}, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestMemoryStore_FindBySortAndPage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "beta"} {
		if _, err := s.Insert(ctx, types.TableOrganization, types.Row{"name": name}); err != nil {
			t.Fatalf("err=%v", err)
		}
	}

	rows, err := s.FindBy(ctx, types.TableOrganization, nil, []types.SortKey{{Attribute: "name"}}, &types.Page{Offset: 1, Limit: 1}, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "beta" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestMemoryStore_FindByNegativeOffset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, types.TableOrganization, types.Row{"name": "alpha"}); err != nil {
		t.Fatalf("err=%v", err)
	}

	rows, err := s.FindBy(ctx, types.TableOrganization, nil, nil, &types.Page{Offset: -1, Limit: 1}, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "alpha" {
		t.Fatalf("rows=%v", rows)
	}
}

func TestMemoryStore_RawPredicateUnsupported(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.FindBy(context.Background(), types.TableOrganization, nil, nil, nil, "id > 1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMemoryStore_UpdateMissingRow(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), types.TableOrganization, 99, types.Row{"name": "x"})
	if !errors.Is(err, ports.ErrRowNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_DeleteMissingRow(t *testing.T) {
	s := NewMemoryStore()
	err := s.DeleteRow(context.Background(), types.TableOrganization, 99)
	if !errors.Is(err, ports.ErrRowNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestMemoryStore_AbortDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Execute(ctx, false, func(ctx context.Context) error {
		if _, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	rows, err := s.FindBy(ctx, types.TableAccount, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestMemoryStore_CommitPublishesWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Execute(ctx, false, func(ctx context.Context) error {
		_, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"})
		return err
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	rows, err := s.FindBy(ctx, types.TableAccount, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%v", rows)
	}
}

func TestMemoryStore_NestedExecuteJoins(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Execute(ctx, false, func(ctx context.Context) error {
		if _, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "outer"}); err != nil {
			return err
		}
		return s.Execute(ctx, false, func(ctx context.Context) error {
			if _, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "inner"}); err != nil {
				return err
			}
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	rows, err := s.FindBy(ctx, types.TableAccount, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(rows) != 0 {
		t.Fatal("inner abort must discard the whole unit of work")
	}
}

func TestMemoryStore_ReadOnlyRejectsWrites(t *testing.T) {
	s := NewMemoryStore()
	err := s.Execute(context.Background(), true, func(ctx context.Context) error {
		_, err := s.Insert(ctx, types.TableAccount, types.Row{"account_name": "acme"})
		return err
	})
	if err == nil {
		t.Fatal("expected write in read-only transaction to fail")
	}
}

func TestMemoryStore_TransactionIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, types.TableOrganization, types.Row{"name": "before"}); err != nil {
		t.Fatalf("err=%v", err)
	}

	err := s.Execute(ctx, false, func(txCtx context.Context) error {
		if err := s.Update(txCtx, types.TableOrganization, 1, types.Row{"name": "after"}); err != nil {
			return err
		}
		rows, err := s.FindBy(txCtx, types.TableOrganization, nil, nil, nil, "")
		if err != nil {
			return err
		}
		if rows[0]["name"] != "after" {
			t.Errorf("tx view=%v", rows[0]["name"])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	rows, err := s.FindBy(ctx, types.TableOrganization, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if rows[0]["name"] != "after" {
		t.Fatalf("name=%v", rows[0]["name"])
	}
}
