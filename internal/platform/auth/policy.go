package auth

// Access policy checks shared by the HTTP layer. Role checks never consult the
// underlying resource: a caller without the required role is rejected even when
// the resource does not exist.

// CanMutateCatalog reports whether the identity may create, update, or delete
// categories and products.
func CanMutateCatalog(identity *Identity) bool {
	return identity.HasRole(RoleOwner)
}

// CanManageOrders reports whether the identity may list orders across users,
// change order status, or delete orders.
func CanManageOrders(identity *Identity) bool {
	return identity.HasAnyRole(RoleAdmin, RoleOwner)
}

// CanReadOrder reports whether the identity may view the order owned by ownerID.
func CanReadOrder(identity *Identity, ownerID string) bool {
	if identity == nil {
		return false
	}
	if identity.UID != "" && identity.UID == ownerID {
		return true
	}
	return CanManageOrders(identity)
}

// CanCreateOrder reports whether the identity may place a new order.
// Any authenticated principal qualifies.
func CanCreateOrder(identity *Identity) bool {
	return identity != nil && identity.UID != ""
}
