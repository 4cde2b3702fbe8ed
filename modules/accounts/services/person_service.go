package services

import (
	"context"

	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
	"github.com/Raaghu/collaboration/pkg/access"
	"github.com/Raaghu/collaboration/pkg/apperr"
)

// PersonService exposes the person entity.
type PersonService struct {
	*entityModel
}

func (p *PersonService) Create(ctx context.Context, caller access.Caller, attrs types.Row) (*Instance, error) {
	return p.create(ctx, caller, attrs)
}

func (p *PersonService) Get(ctx context.Context, caller access.Caller, id int64) (*Instance, error) {
	return p.load(ctx, caller, id)
}

func (p *PersonService) GetByAccountName(ctx context.Context, caller access.Caller, accountName string) (*Instance, error) {
	return p.loadByAccountName(ctx, caller, accountName)
}

func (p *PersonService) Find(ctx context.Context, caller access.Caller, filters []types.Condition, sort []types.SortKey, page *types.Page, raw string) ([]*Instance, error) {
	return p.find(ctx, caller, filters, sort, page, raw)
}

// Delete removes the person. It refuses while the person still belongs to
// any organization.
func (p *PersonService) Delete(ctx context.Context, caller access.Caller, person *Instance) error {
	return p.delete(ctx, caller, person, func(ctx context.Context) error {
		links, err := p.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("person_id", person.id)}, nil, nil, "")
		if err != nil {
			return err
		}
		if len(links) > 0 {
			return apperr.NewObjectState("person still belongs to organizations")
		}
		return nil
	})
}

// GetOrganizations returns the organizations the person belongs to,
// filtered to those the caller may see. Membership rows and organization
// rows are read in one read-only transaction.
func (p *PersonService) GetOrganizations(ctx context.Context, caller access.Caller, person *Instance) ([]*Instance, error) {
	orgs := p.svc.Organizations()
	var out []*Instance
	err := p.svc.tx.Execute(ctx, true, func(ctx context.Context) error {
		links, err := p.svc.store.FindBy(ctx, types.TableOrganizationPerson, []types.Condition{types.Eq("person_id", person.id)}, nil, nil, "")
		if err != nil {
			return err
		}
		orgIDs := make([]int64, 0, len(links))
		for _, link := range links {
			oid, err := asID(link["organization_id"])
			if err != nil {
				return err
			}
			orgIDs = append(orgIDs, oid)
		}
		if len(orgIDs) == 0 {
			return nil
		}
		out, err = orgs.find(ctx, caller, []types.Condition{types.InInt64(AttrID, orgIDs)}, nil, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
