package services

import (
	"context"
	"fmt"

	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
	"github.com/Raaghu/collaboration/pkg/access"
	"github.com/Raaghu/collaboration/pkg/apperr"
)

// OrganizationService exposes the organization entity: attribute access
// through the embedded model plus the tree and membership operations.
type OrganizationService struct {
	*entityModel
}

func (o *OrganizationService) Create(ctx context.Context, caller access.Caller, attrs types.Row) (*Instance, error) {
	return o.create(ctx, caller, attrs)
}

func (o *OrganizationService) Get(ctx context.Context, caller access.Caller, id int64) (*Instance, error) {
	return o.load(ctx, caller, id)
}

func (o *OrganizationService) GetByAccountName(ctx context.Context, caller access.Caller, accountName string) (*Instance, error) {
	return o.loadByAccountName(ctx, caller, accountName)
}

func (o *OrganizationService) Find(ctx context.Context, caller access.Caller, filters []types.Condition, sort []types.SortKey, page *types.Page, raw string) ([]*Instance, error) {
	return o.find(ctx, caller, filters, sort, page, raw)
}

// Delete removes the organization. It refuses while children or members
// remain; detaching them first is the caller's job.
func (o *OrganizationService) Delete(ctx context.Context, caller access.Caller, org *Instance) error {
	return o.delete(ctx, caller, org, func(ctx context.Context) error {
		children, err := o.svc.store.FindBy(ctx, types.TableOrganization, []types.Condition{types.Eq("parent_id", org.id)}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return apperr.NewObjectState(fmt.Sprintf("organization %d still has %d child organizations", org.id, len(children)))
		}
		links, err := o.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("organization_id", org.id)}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(links) > 0 {
			return apperr.NewObjectState(fmt.Sprintf("organization %d still has %d members", org.id, len(links)))
		}
		return nil
	})
}

// AddChildren attaches the given organizations as children in one
// transaction. Every child is re-read inside the transaction; a child
// already attached to this organization is left alone, while one attached
// to a different parent, or one appearing in this organization's ancestor
// chain, aborts the whole batch.
func (o *OrganizationService) AddChildren(ctx context.Context, caller access.Caller, org *Instance, children []*Instance) error {
	caller, err := o.gateUpdate(ctx, caller, org)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	err = o.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		ancestors, err := o.ancestorIDs(ctx, org.id)
		if err != nil {
			return err
		}
		ancestors[org.id] = true
		for _, child := range children {
			if !child.initialized {
				return apperr.NewObjectState("organization is not initialized")
			}
			if child.id == org.id {
				return apperr.NewBadInput(fmt.Sprintf("organization %d cannot be its own child", org.id))
			}
			if ancestors[child.id] {
				return apperr.NewBadInput(fmt.Sprintf("organization %d is an ancestor of organization %d", child.id, org.id))
			}
			row, err := o.fetchRow(ctx, child.id)
			if err != nil {
				return err
			}
			if row["parent_id"] != nil {
				parentID, err := asID(row["parent_id"])
				if err != nil {
					return err
				}
				// Already attached here: nothing to do for this child.
				if parentID == org.id {
					continue
				}
				return apperr.NewBadInput(fmt.Sprintf("organization %d is already a child of organization %d", child.id, parentID))
			}
			if err := o.svc.store.Update(ctx, types.TableOrganization, child.id, types.Row{"parent_id": org.id}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return o.mapStoreError(err)
	}
	for _, child := range children {
		child.attrs[AttrParentID] = org.id
	}
	o.svc.logger.Info().
		Int64("organization", org.id).
		Int("children", len(children)).
		Int64("actor", caller.AccountID).
		Msg("children attached")
	return nil
}

// RemoveChildren detaches the given organizations. A child not currently
// attached to this organization aborts the batch.
func (o *OrganizationService) RemoveChildren(ctx context.Context, caller access.Caller, org *Instance, children []*Instance) error {
	caller, err := o.gateUpdate(ctx, caller, org)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	err = o.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		for _, child := range children {
			if !child.initialized {
				return apperr.NewObjectState("organization is not initialized")
			}
			row, err := o.fetchRow(ctx, child.id)
			if err != nil {
				return err
			}
			attached := false
			if row["parent_id"] != nil {
				parentID, err := asID(row["parent_id"])
				if err != nil {
					return err
				}
				attached = parentID == org.id
			}
			if !attached {
				return apperr.NewBadInput(fmt.Sprintf("organization %d is not a child of organization %d", child.id, org.id))
			}
			if err := o.svc.store.Update(ctx, types.TableOrganization, child.id, types.Row{"parent_id": nil}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return o.mapStoreError(err)
	}
	for _, child := range children {
		child.attrs[AttrParentID] = nil
	}
	o.svc.logger.Info().
		Int64("organization", org.id).
		Int("children", len(children)).
		Int64("actor", caller.AccountID).
		Msg("children detached")
	return nil
}

// GetChildren returns the direct children visible to the caller.
func (o *OrganizationService) GetChildren(ctx context.Context, caller access.Caller, org *Instance) ([]*Instance, error) {
	return o.find(ctx, caller, []types.Condition{types.Eq(AttrParentID, org.id)}, nil, nil, "")
}

// GetParent returns the direct parent, or nil for a root organization.
func (o *OrganizationService) GetParent(ctx context.Context, caller access.Caller, org *Instance) (*Instance, error) {
	if org.attrs[AttrParentID] == nil {
		return nil, nil
	}
	parentID, err := asID(org.attrs[AttrParentID])
	if err != nil {
		return nil, err
	}
	return o.load(ctx, caller, parentID)
}

// GetAllParents returns the ancestor chain ordered root first. The walk is
// bounded by the set of already-seen ids so a corrupted tree cannot loop.
func (o *OrganizationService) GetAllParents(ctx context.Context, caller access.Caller, org *Instance) ([]*Instance, error) {
	var chain []*Instance
	err := o.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		seen := map[int64]bool{org.id: true}
		current := org
		for current.attrs[AttrParentID] != nil {
			parentID, err := asID(current.attrs[AttrParentID])
			if err != nil {
				return err
			}
			if seen[parentID] {
				return apperr.NewObjectState(fmt.Sprintf("organization tree contains a cycle through organization %d", parentID))
			}
			seen[parentID] = true
			parent, err := o.load(ctx, caller, parentID)
			if err != nil {
				return err
			}
			chain = append([]*Instance{parent}, chain...)
			current = parent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// AddPeople creates membership associations in one transaction. A person
// already belonging to the organization aborts the batch.
func (o *OrganizationService) AddPeople(ctx context.Context, caller access.Caller, org *Instance, people []*Instance) error {
	caller, err := o.gateUpdate(ctx, caller, org)
	if err != nil {
		return err
	}
	if len(people) == 0 {
		return nil
	}
	err = o.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		for _, person := range people {
			if !person.initialized {
				return apperr.NewObjectState("person is not initialized")
			}
			existing, err := o.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{
				types.Eq("organization_id", org.id),
				types.Eq("person_id", person.id),
			}, nil, nil, "")
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return apperr.NewBadInput(fmt.Sprintf("person %d already belongs to organization %d", person.id, org.id))
			}
			_, err = o.svc.store.Insert(ctx, organizationPersonSpec.Table, organizationPersonSpec.Columns(types.Row{
				"organizationId": org.id,
				"personId":       person.id,
			}))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return o.mapStoreError(err)
	}
	o.svc.logger.Info().
		Int64("organization", org.id).
		Int("people", len(people)).
		Int64("actor", caller.AccountID).
		Msg("people added")
	return nil
}

// RemovePeople removes membership associations in one transaction. A person
// not belonging to the organization aborts the batch.
func (o *OrganizationService) RemovePeople(ctx context.Context, caller access.Caller, org *Instance, people []*Instance) error {
	caller, err := o.gateUpdate(ctx, caller, org)
	if err != nil {
		return err
	}
	if len(people) == 0 {
		return nil
	}
	err = o.svc.tx.Execute(ctx, false, func(ctx context.Context) error {
		for _, person := range people {
			if !person.initialized {
				return apperr.NewObjectState("person is not initialized")
			}
			links, err := o.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{
				types.Eq("organization_id", org.id),
				types.Eq("person_id", person.id),
			}, nil, nil, "")
			if err != nil {
				return err
			}
			if len(links) == 0 {
				return apperr.NewBadInput(fmt.Sprintf("person %d does not belong to organization %d", person.id, org.id))
			}
			linkID, err := asID(links[0]["id"])
			if err != nil {
				return err
			}
			if err := o.svc.store.DeleteRow(ctx, types.TableOrganizationPerson, linkID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return o.mapStoreError(err)
	}
	o.svc.logger.Info().
		Int64("organization", org.id).
		Int("people", len(people)).
		Int64("actor", caller.AccountID).
		Msg("people removed")
	return nil
}

// GetPeople returns the organization's members visible to the caller. The
// membership rows and the person rows are read in one read-only
// transaction so the list is a consistent snapshot.
func (o *OrganizationService) GetPeople(ctx context.Context, caller access.Caller, org *Instance) ([]*Instance, error) {
	persons := o.svc.Persons()
	var out []*Instance
	err := o.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		links, err := o.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("organization_id", org.id)}, nil, nil, "")
		if err != nil {
			return err
		}
		personIDs := make([]int64, 0, len(links))
		for _, link := range links {
			pid, err := asID(link["person_id"])
			if err != nil {
				return err
			}
			personIDs = append(personIDs, pid)
		}
		if len(personIDs) == 0 {
			return nil
		}
		out, err = persons.find(ctx, caller, []types.Condition{types.InInt64(AttrID, personIDs)}, nil, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// gateUpdate evaluates the organization's update requirement, fetching
// fresh facts for the capability checks.
func (o *OrganizationService) gateUpdate(ctx context.Context, caller access.Caller, org *Instance) (access.Caller, error) {
	if !org.initialized {
		return caller, apperr.NewObjectState("organization is not initialized")
	}
	caller, err := o.svc.callerWithFacts(ctx, caller)
	if err != nil {
		return caller, err
	}
	target, err := o.target(ctx, org.id, org.attrs)
	if err != nil {
		return caller, err
	}
	if err := o.svc.eval.Evaluate(ctx, caller, target, o.svc.policy.Operation(o.entity, access.OpUpdate)); err != nil {
		return caller, err
	}
	return caller, nil
}

// fetchRow reads one organization row by id inside the current transaction.
func (o *OrganizationService) fetchRow(ctx context.Context, id int64) (types.Row, error) {
	rows, err := o.svc.store.FindBy(ctx, types.TableOrganization, []types.Condition{types.Eq("id", id)}, nil, nil, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NewObjectState(fmt.Sprintf("organization %d no longer exists", id))
	}
	return rows[0], nil
}

// ancestorIDs collects the ids above the given organization, bounded
// against cycles.
func (o *OrganizationService) ancestorIDs(ctx context.Context, id int64) (map[int64]bool, error) {
	seen := map[int64]bool{}
	current := id
	for {
		row, err := o.fetchRow(ctx, current)
		if err != nil {
			return nil, err
		}
		if row["parent_id"] == nil {
			return seen, nil
		}
		parentID, err := asID(row["parent_id"])
		if err != nil {
			return nil, err
		}
		if seen[parentID] || parentID == id {
			return seen, nil
		}
		seen[parentID] = true
		current = parentID
	}
}
