package builtin

import "github.com/gridmarket/negotiator/pkg/registry"

// Component names as referenced from declarative trees.
const (
	NameAcceptAll       = "accept-all"
	NameMaxAgreements   = "max-agreements"
	NameLimitExpiration = "limit-expiration"
	NamePriceCap        = "price-cap"
)

// Register adds every builtin constructor to the given registry. Call it once
// at startup before trees are built.
func Register(r *registry.Registry) {
	r.Register(NameAcceptAll, NewAcceptAll)
	r.Register(NameMaxAgreements, NewMaxAgreements)
	r.Register(NameLimitExpiration, NewLimitExpiration)
	r.Register(NamePriceCap, NewPriceCap)
}
