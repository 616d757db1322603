package accounts

import (
	"context"

	"github.com/google/uuid"
)

// AttributeLister is the read side of Attributes used for claims
type AttributeLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Attribute, error)
}

// AttributeClaimProvider contributes the stored user attributes as a claim
// fragment. Attributes are applied in position order so a later attribute
// with the same key wins.
type AttributeClaimProvider struct {
	attributes AttributeLister
}

var _ NamedClaimProvider = (*AttributeClaimProvider)(nil)

func NewAttributeClaimProvider(attributes AttributeLister) *AttributeClaimProvider {
	return &AttributeClaimProvider{attributes: attributes}
}

func (p *AttributeClaimProvider) Name() string {
	return "attributes"
}

func (p *AttributeClaimProvider) FetchFragment(ctx context.Context, id IdentityRef) (ClaimFragment, error) {
	userID, err := uuid.Parse(id.String())
	if err != nil {
		return nil, withCause(ErrIdentityNotFound, err, map[string]any{"identity": id.String()})
	}

	records, err := p.attributes.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}

	fragment := make(ClaimFragment, len(records))
	for _, attr := range records {
		fragment[attr.Key] = attr.Text
	}
	return fragment, nil
}
